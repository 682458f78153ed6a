package main

import (
	"context"
	hyped "github.com/Hyp-ed/hyped-2025-sub000"
	"github.com/Hyp-ed/hyped-2025-sub000/canbus"
	"github.com/Hyp-ed/hyped-2025-sub000/config"
	"github.com/Hyp-ed/hyped-2025-sub000/forwarder"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"net/http"
	"time"
)

var runFlags struct {
	config   string
	pods     string
	testMode bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run this board's coordination layer on a CAN interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.DefaultNode()
		if runFlags.config != "" {
			var err error
			if cfg, err = config.LoadNode(runFlags.config); err != nil {
				return err
			}
		}
		if logLevel == "" {
			lvl, _ := log.ParseLevel(cfg.LogLevel)
			log.SetLevel(lvl)
		}
		return run(cmd.Context(), cfg)
	},
}

func init() {
	runCmd.Flags().StringVar(&runFlags.config, "config", "", "node configuration (TOML)")
	runCmd.Flags().StringVar(&runFlags.pods, "pods", "", "pod definitions (YAML), defaults to the built in pods")
	runCmd.Flags().BoolVar(&runFlags.testMode, "testmode", false, "generate test readings")
}

func loadPod(path, key string) (*config.Pod, error) {
	pods, err := config.LoadPods(path)
	if err != nil {
		return nil, err
	}
	return pods.Pod(key)
}

func run(ctx context.Context, cfg config.Node) error {
	pod, err := loadPod(runFlags.pods, cfg.Pod)
	if err != nil {
		return err
	}
	node, link, err := newCANNode(cfg, pod)
	if err != nil {
		return err
	}
	defer link.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return link.Run(ctx)
	})
	g.Go(func() error {
		return node.Run(ctx)
	})
	if cfg.Metrics != nil && cfg.Metrics.Listen != "" {
		g.Go(func() error {
			return serveMetrics(ctx, cfg.Metrics.Listen)
		})
	}
	if runFlags.testMode {
		tm, err := hyped.NewTestMode(node, pod, hyped.DefaultTestModeInterval, nil)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return tm.Run(ctx)
		})
	}
	return g.Wait()
}

func newCANNode(cfg config.Node, pod *config.Pod) (*hyped.Node, *canbus.Link, error) {
	codec, err := codecFor(pod)
	if err != nil {
		return nil, nil, err
	}
	link := canbus.NewLink(cfg.Interface, cfg.Queue.Inbox*4)
	node, err := hyped.NewNode(hyped.Options{
		Board:     cfg.Board,
		Authority: cfg.Authority,
		Policy:    cfg.Policy,
		Codec:     codec,
		Bus:       link,
		Peers:     cfg.Heartbeats(),
		Queue:     cfg.Queue,
		Responder: cfg.Responder,
		Pod:       pod,
	})
	if err != nil {
		return nil, nil, err
	}

	if cfg.UDP.Enabled() {
		udp, err := forwarder.NewUDPForwarder(*cfg.UDP)
		if err != nil {
			return nil, nil, errors.Wrap(err, "unable to load UDP forwarder")
		}
		node.AddForwarder(udp)
	}
	if cfg.MQTT.Enabled() {
		mqtt, err := forwarder.NewMQTT(*cfg.MQTT, pod.Key, codec.Measurements(), node.RequestSender())
		if err != nil {
			return nil, nil, errors.Wrap(err, "unable to load MQTT forwarder")
		}
		node.AddForwarder(mqtt)
	}
	return node, link, nil
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	log.WithField("addr", addr).Info("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "metrics server")
	}
	return nil
}
