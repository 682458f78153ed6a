package config

import (
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestDefaultPods(t *testing.T) {
	cfg, err := DefaultPods()
	require.NoError(t, err)
	assert.Equal(t, []string{"poddington"}, cfg.PodKeys())

	pod, err := cfg.Pod("")
	require.NoError(t, err)
	assert.Equal(t, "Poddington", pod.Label)

	ns, err := pod.Namespace()
	require.NoError(t, err)
	id, ok := ns.ID("temperature")
	assert.True(t, ok)
	assert.Equal(t, comms.MeasurementID(0), id)
	id, ok = ns.ID("keyence_stripe_count")
	assert.True(t, ok)
	assert.Equal(t, comms.MeasurementID(2), id)
}

func TestParsePodsKeepsOrder(t *testing.T) {
	cfg, err := ParsePods([]byte(`
pods:
  pod_2:
    label: Pod 2
    measurements:
      zeta:
        name: Zeta
        unit: m
        format: float
        limits:
          critical: {min: 0, max: 1}
      alpha:
        name: Alpha
        unit: m
        format: integer
        limits:
          warning: {min: 2, max: 3}
          critical: {min: 0, max: 10}
  pod_1:
    label: Pod 1
    measurements:
      keyence:
        name: Keyence
        unit: number of stripes
        format: integer
        limits:
          critical: {min: 0, max: 16}
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"pod_2", "pod_1"}, cfg.PodKeys())

	pod, err := cfg.Pod("pod_2")
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha"}, pod.MeasurementKeys())
	ns, err := pod.Namespace()
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha"}, ns.Names())

	alpha, ok := pod.Measurement("alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha", alpha.Key)
	assert.Equal(t, FormatInteger, alpha.Format)
	assert.Equal(t, &Range{Min: 2, Max: 3}, alpha.Limits.Warning)
	assert.True(t, alpha.Limits.Critical.Contains(10))
	assert.False(t, alpha.Limits.Critical.Contains(10.5))

	_, err = cfg.Pod("")
	assert.Error(t, err)
	_, err = cfg.Pod("pod_3")
	assert.Error(t, err)
}

func TestParsePodsErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"missing critical": `
pods:
  p:
    measurements:
      keyence:
        format: integer
        limits:
          warning: {min: 0, max: 16}`,
		"missing limits": `
pods:
  p:
    measurements:
      keyence:
        format: integer`,
		"bad format": `
pods:
  p:
    measurements:
      keyence:
        format: text
        limits:
          critical: {min: 0, max: 16}`,
		"inverted range": `
pods:
  p:
    measurements:
      keyence:
        format: integer
        limits:
          critical: {min: 16, max: 0}`,
		"warning outside critical": `
pods:
  p:
    measurements:
      keyence:
        format: integer
        limits:
          warning: {min: 0, max: 20}
          critical: {min: 0, max: 16}`,
		"no pods":  `pods: {}`,
		"not yaml": `pods: [`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePods([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadPodsDefault(t *testing.T) {
	cfg, err := LoadPods("")
	require.NoError(t, err)
	assert.Len(t, cfg.PodKeys(), 1)

	_, err = LoadPods("/nonexistent/pods.yaml")
	assert.Error(t, err)
}
