package config

import (
	_ "embed"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"os"
)

//go:embed pods.yaml
var defaultPods []byte

type Format string

const (
	FormatFloat   Format = "float"
	FormatInteger Format = "integer"
)

// Range is an inclusive interval.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

type Limits struct {
	Warning  *Range `yaml:"warning"`
	Critical *Range `yaml:"critical"`
}

type Measurement struct {
	Key    string `yaml:"-"`
	Name   string `yaml:"name"`
	Unit   string `yaml:"unit"`
	Format Format `yaml:"format"`
	Limits Limits `yaml:"limits"`
}

type Pod struct {
	Key          string                  `yaml:"-"`
	Label        string                  `yaml:"label"`
	Measurements map[string]*Measurement `yaml:"measurements"`

	measurementKeys []string
}

// MeasurementKeys lists measurement keys in file order, which is also the
// order of their bus identifiers.
func (p *Pod) MeasurementKeys() []string {
	return append([]string(nil), p.measurementKeys...)
}

// Namespace assigns measurement identifiers 0, 1, 2... in file order.
func (p *Pod) Namespace() (*comms.Namespace, error) {
	return comms.NewNamespace(p.measurementKeys...)
}

func (p *Pod) Measurement(key string) (*Measurement, bool) {
	m, ok := p.Measurements[key]
	return m, ok
}

type PodConfig struct {
	Pods map[string]*Pod `yaml:"pods"`

	podKeys []string
}

func (c *PodConfig) PodKeys() []string {
	return append([]string(nil), c.podKeys...)
}

// Pod looks up a pod by key. An empty key selects the only pod when exactly
// one is configured.
func (c *PodConfig) Pod(key string) (*Pod, error) {
	if key == "" && len(c.podKeys) == 1 {
		key = c.podKeys[0]
	}
	p, ok := c.Pods[key]
	if !ok {
		return nil, errors.Errorf("pod %q is not configured", key)
	}
	return p, nil
}

func DefaultPods() (*PodConfig, error) {
	return ParsePods(defaultPods)
}

// LoadPods reads a pods file, falling back to the built-in one when path is empty.
func LoadPods(path string) (*PodConfig, error) {
	if path == "" {
		return DefaultPods()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read pods file %s", path)
	}
	return ParsePods(data)
}

func ParsePods(data []byte) (*PodConfig, error) {
	var cfg PodConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "unable to parse pods config")
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.Wrap(err, "unable to parse pods config")
	}
	if err := cfg.recordOrder(&root); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// recordOrder keeps the key order of the pods and measurements mappings,
// which a Go map would otherwise lose.
func (c *PodConfig) recordOrder(root *yaml.Node) error {
	pods := mappingValue(documentBody(root), "pods")
	if pods == nil {
		return errors.New("pods config has no pods mapping")
	}
	for _, podKey := range mappingKeys(pods) {
		pod, ok := c.Pods[podKey]
		if !ok || pod == nil {
			return errors.Errorf("pod %q is empty", podKey)
		}
		pod.Key = podKey
		c.podKeys = append(c.podKeys, podKey)

		measurements := mappingValue(mappingValue(pods, podKey), "measurements")
		for _, key := range mappingKeys(measurements) {
			m, ok := pod.Measurements[key]
			if !ok || m == nil {
				return errors.Errorf("pod %q: measurement %q is empty", podKey, key)
			}
			m.Key = key
			pod.measurementKeys = append(pod.measurementKeys, key)
		}
	}
	return nil
}

func documentBody(n *yaml.Node) *yaml.Node {
	if n != nil && n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		return n.Content[0]
	}
	return n
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func mappingKeys(n *yaml.Node) []string {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	keys := make([]string, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		keys = append(keys, n.Content[i].Value)
	}
	return keys
}

// Validate checks every measurement has critical limits and sane ranges.
func (c *PodConfig) Validate() error {
	if len(c.podKeys) == 0 {
		return errors.New("pods config defines no pods")
	}
	for _, podKey := range c.podKeys {
		pod := c.Pods[podKey]
		if len(pod.measurementKeys) > int(comms.MaxMeasurementID)+1 {
			return errors.Wrapf(comms.ErrIdentifierOverflow, "pod %q has %d measurements", podKey, len(pod.measurementKeys))
		}
		for _, key := range pod.measurementKeys {
			if err := pod.Measurements[key].validate(); err != nil {
				return errors.Wrapf(err, "pod %q: measurement %q", podKey, key)
			}
		}
	}
	return nil
}

func (m *Measurement) validate() error {
	switch m.Format {
	case FormatFloat, FormatInteger:
	default:
		return errors.Errorf("unknown format %q", m.Format)
	}
	if m.Limits.Critical == nil {
		return errors.New("critical limits are required")
	}
	if m.Limits.Critical.Min > m.Limits.Critical.Max {
		return errors.New("critical min is above max")
	}
	if w := m.Limits.Warning; w != nil {
		if w.Min > w.Max {
			return errors.New("warning min is above max")
		}
		if !m.Limits.Critical.Contains(w.Min) || !m.Limits.Critical.Contains(w.Max) {
			return errors.New("warning limits must lie inside critical limits")
		}
	}
	return nil
}
