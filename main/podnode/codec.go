package main

import (
	"fmt"
	"github.com/Hyp-ed/hyped-2025-sub000/comms"
	"github.com/Hyp-ed/hyped-2025-sub000/config"
	"github.com/Hyp-ed/hyped-2025-sub000/statemachine"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"strconv"
	"strings"
)

var codecPods string

func codecFor(pod *config.Pod) (*comms.Codec, error) {
	ns, err := pod.Namespace()
	if err != nil {
		return nil, err
	}
	return comms.NewCodec(ns), nil
}

func defaultCodec() (*comms.Codec, error) {
	pod, err := loadPod(codecPods, "")
	if err != nil {
		return nil, err
	}
	return codecFor(pod)
}

var encodeCmd = &cobra.Command{
	Use:   "encode <command|request|heartbeat|reading> <board> <value...>",
	Short: "Print the frame for a message",
	Example: `  podnode encode request navigation accelerate
  podnode encode heartbeat test keyence_tester
  podnode encode reading telemetry acceleration f32 0`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		codec, err := defaultCodec()
		if err != nil {
			return err
		}
		m, err := parseMessage(codec, args)
		if err != nil {
			return err
		}
		f, err := codec.Encode(m)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), f)
		return nil
	},
}

var decodeCmd = &cobra.Command{
	Use:     "decode <id> <data>",
	Short:   "Decode a frame given as a hex identifier and hex payload",
	Example: "  podnode decode 005FFC03 \"05 05 00 00 00 00 00 00\"",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		codec, err := defaultCodec()
		if err != nil {
			return err
		}
		f, err := parseFrame(args[0], args[1])
		if err != nil {
			return err
		}
		m, err := codec.Decode(f)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), m)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{encodeCmd, decodeCmd} {
		cmd.Flags().StringVar(&codecPods, "pods", "", "pod definitions (YAML) for the measurement namespace")
	}
}

func parseMessage(codec *comms.Codec, args []string) (comms.Message, error) {
	board, err := comms.BoardFromName(args[1])
	if err != nil {
		return nil, err
	}
	switch args[0] {
	case "command", "request":
		s, err := statemachine.ParseState(args[2])
		if err != nil {
			return nil, err
		}
		if args[0] == "command" {
			return comms.StateTransitionCommand{FromBoard: board, ToState: s}, nil
		}
		return comms.StateTransitionRequest{RequestingBoard: board, ToState: s}, nil
	case "heartbeat":
		to, err := comms.BoardFromName(args[2])
		if err != nil {
			return nil, err
		}
		return comms.Heartbeat{To: to, From: board}, nil
	case "reading":
		if len(args) != 5 {
			return nil, errors.New("reading needs <measurement> <type> <value>")
		}
		id, ok := codec.Measurements().ID(args[2])
		if !ok {
			return nil, errors.Errorf("unknown measurement %q", args[2])
		}
		data, err := parseData(args[3], args[4])
		if err != nil {
			return nil, err
		}
		return comms.MeasurementReading{Reading: data, Board: board, Measurement: id}, nil
	}
	return nil, errors.Errorf("unknown message kind %q", args[0])
}

func parseData(typ, value string) (comms.Data, error) {
	switch typ {
	case "bool":
		v, err := strconv.ParseBool(value)
		return comms.BoolData(v), errors.Wrap(err, "bool reading")
	case "f32":
		v, err := strconv.ParseFloat(value, 32)
		return comms.F32Data(float32(v)), errors.Wrap(err, "f32 reading")
	case "u32":
		v, err := strconv.ParseUint(value, 10, 32)
		return comms.U32Data(uint32(v)), errors.Wrap(err, "u32 reading")
	case "two_u16":
		parts := strings.Split(value, ",")
		if len(parts) != 2 {
			return comms.Data{}, errors.New("two_u16 reading needs a,b")
		}
		a, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 16)
		if err != nil {
			return comms.Data{}, errors.Wrap(err, "two_u16 reading")
		}
		b, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 16)
		if err != nil {
			return comms.Data{}, errors.Wrap(err, "two_u16 reading")
		}
		return comms.TwoU16Data(uint16(a), uint16(b)), nil
	}
	return comms.Data{}, errors.Errorf("unsupported reading type %q", typ)
}

func parseFrame(id, data string) (comms.Frame, error) {
	raw, err := strconv.ParseUint(strings.TrimPrefix(id, "0x"), 16, 32)
	if err != nil {
		return comms.Frame{}, errors.Wrap(err, "frame id")
	}
	f := comms.Frame{ID: uint32(raw)}
	hex := strings.NewReplacer(" ", "", ":", "", ".", "").Replace(data)
	if len(hex) > 16 || len(hex)%2 != 0 {
		return comms.Frame{}, errors.Errorf("payload %q is not up to 8 hex bytes", data)
	}
	for i := 0; i < len(hex); i += 2 {
		b, err := strconv.ParseUint(hex[i:i+2], 16, 8)
		if err != nil {
			return comms.Frame{}, errors.Wrap(err, "frame payload")
		}
		f.Data[i/2] = byte(b)
	}
	return f, nil
}
