package main

import (
	"context"
	hyped "github.com/Hyp-ed/hyped-2025-sub000"
	"github.com/Hyp-ed/hyped-2025-sub000/canbus"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/config"
	"github.com/Hyp-ed/hyped-2025-sub000/heartbeat"
	"github.com/Hyp-ed/hyped-2025-sub000/statemachine"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"time"
)

var simulateFlags struct {
	pods     string
	duration time.Duration
	step     time.Duration
	silent   string
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run several boards on an in-process bus and walk the pod through a run",
	RunE: func(cmd *cobra.Command, args []string) error {
		pod, err := loadPod(simulateFlags.pods, "")
		if err != nil {
			return err
		}
		var silent *comms.Board
		if simulateFlags.silent != "" {
			b, err := comms.BoardFromName(simulateFlags.silent)
			if err != nil {
				return err
			}
			silent = &b
		}
		return simulate(cmd.Context(), pod, silent)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateFlags.pods, "pods", "", "pod definitions (YAML)")
	simulateCmd.Flags().DurationVar(&simulateFlags.duration, "duration", 10*time.Second, "how long to run")
	simulateCmd.Flags().DurationVar(&simulateFlags.step, "step", 500*time.Millisecond, "delay between state requests")
	simulateCmd.Flags().StringVar(&simulateFlags.silent, "silent", "", "board that stops sending halfway through")
}

var simulatedRun = []statemachine.State{
	statemachine.Calibrate,
	statemachine.Precharge,
	statemachine.ReadyForLevitation,
	statemachine.BeginLevitation,
	statemachine.Levitating,
	statemachine.Ready,
	statemachine.Accelerate,
	statemachine.LimBrake,
	statemachine.FrictionBrake,
	statemachine.StopLevitation,
	statemachine.Stopped,
	statemachine.Safe,
}

func simulate(ctx context.Context, pod *config.Pod, silent *comms.Board) error {
	codec, err := codecFor(pod)
	if err != nil {
		return err
	}
	bus := canbus.NewVirtualBus()
	boards := []comms.Board{comms.BoardTelemetry, comms.BoardNavigation, comms.BoardPneumatics, comms.BoardTest}
	nodes := map[comms.Board]*hyped.Node{}
	for _, b := range boards {
		var peers []heartbeat.Config
		if b == comms.BoardTelemetry {
			for _, peer := range boards[1:] {
				peers = append(peers, heartbeat.DefaultConfig(peer))
			}
		}
		n, err := hyped.NewNode(hyped.Options{
			Board:     b,
			Authority: b == comms.BoardTelemetry,
			Policy:    statemachine.EmergencyFromAnyState,
			Codec:     codec,
			Bus:       bus.Attach(256),
			Peers:     peers,
			Pod:       podFor(b, pod),
		})
		if err != nil {
			return err
		}
		nodes[b] = n
	}

	ctx, cancel := context.WithTimeout(ctx, simulateFlags.duration)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	for _, b := range boards {
		n := nodes[b]
		g.Go(func() error {
			return n.Run(ctx)
		})
	}

	tm, err := hyped.NewTestMode(nodes[comms.BoardTest], pod, hyped.DefaultTestModeInterval, nil)
	if err != nil {
		return err
	}
	g.Go(func() error {
		return tm.Run(ctx)
	})

	watch := nodes[comms.BoardNavigation].WatchState(len(simulatedRun))
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case s := <-watch:
				log.WithField("state", s).Info("navigation sees new state")
			}
		}
	})

	g.Go(func() error {
		return drive(ctx, nodes[comms.BoardNavigation], bus, silent)
	})

	err = g.Wait()
	for _, b := range boards {
		log.WithFields(log.Fields{
			"board": b,
			"state": nodes[b].State(),
		}).Info("final state")
	}
	return err
}

// podFor gives limit checking to the authority only.
func podFor(b comms.Board, pod *config.Pod) *config.Pod {
	if b == comms.BoardTelemetry {
		return pod
	}
	return nil
}

// drive requests every state of a nominal run in turn. A silent board has
// its frames dropped by the bus from halfway through.
func drive(ctx context.Context, requester *hyped.Node, bus *canbus.VirtualBus, silent *comms.Board) error {
	for i, s := range simulatedRun {
		if silent != nil && i == len(simulatedRun)/2 {
			log.WithField("board", *silent).Warn("silencing board")
			board := *silent
			bus.SetLoss(func(_ int, f comms.Frame) bool {
				return comms.Board(f.ID&0xFF) == board
			})
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(simulateFlags.step):
		}
		if err := requester.Request(ctx, s); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	return nil
}
