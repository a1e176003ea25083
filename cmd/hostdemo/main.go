// Command hostdemo wires a coordinator.Coordinator to the in-process
// fakeplugin factory and drives a few process cycles through
// ProcessInterleaved, purely to exercise the public surface end-to-end.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/shaban/pluginhost/abi"
	"github.com/shaban/pluginhost/coordinator"
	"github.com/shaban/pluginhost/events"
	"github.com/shaban/pluginhost/graph"
	"github.com/shaban/pluginhost/internal/fakeplugin"
	"github.com/shaban/pluginhost/savestate"
	"github.com/spf13/pflag"
)

func main() {
	var (
		sampleRate  = pflag.Float64("sample-rate", 48000, "sample rate in Hz")
		minFrames   = pflag.Int("min-frames", 64, "minimum frames per cycle")
		maxFrames   = pflag.Int("max-frames", 1024, "maximum frames per cycle")
		channels    = pflag.Int("channels", 2, "graph-in/graph-out channel count")
		cycles      = pflag.Int("cycles", 4, "number of process cycles to drive")
		frames      = pflag.Int("frames", 128, "frames per driven cycle")
		gain        = pflag.Float64("gain", 1.0, "initial gain parameter pushed to the fake plugin")
		verbose     = pflag.Bool("verbose", false, "enable debug logging")
	)
	pflag.Parse()

	logger := log.New(os.Stderr)
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	lookup := func(key string) (abi.Factory, error) {
		switch key {
		case "fakeplugin.gain":
			return &fakeplugin.Factory{Channels: *channels}, nil
		default:
			return nil, fmt.Errorf("hostdemo: unknown plugin key %q", key)
		}
	}

	c := coordinator.New(coordinator.Config{
		HostName:         "hostdemo",
		HostVersion:      "0.0.0",
		SampleRate:       *sampleRate,
		MinFrames:        *minFrames,
		MaxFrames:        *maxFrames,
		GraphInChannels:  *channels,
		GraphOutChannels: *channels,
		Factories:        lookup,
		Logger:           logger,
	})

	id, err := c.AddPlugin(savestate.PluginRecord{
		Format:              graph.FormatInternal,
		Key:                 "fakeplugin.gain",
		ActivationRequested: true,
	})
	if err != nil {
		logger.Fatalf("adding plugin: %v", err)
	}

	for ch := uint16(0); ch < uint16(*channels); ch++ {
		if err := c.ConnectEdge(
			graph.PortRef{Node: c.Graph().GraphIn(), Key: graph.PortKey{Type: graph.PortAudio, StableID: 0, Dir: graph.DirOutput, Channel: ch}},
			graph.PortRef{Node: id, Key: graph.PortKey{Type: graph.PortAudio, StableID: 0, Dir: graph.DirInput, Channel: ch}},
		); err != nil {
			logger.Fatalf("connecting graph-in to plugin: %v", err)
		}
		if err := c.ConnectEdge(
			graph.PortRef{Node: id, Key: graph.PortKey{Type: graph.PortAudio, StableID: 0, Dir: graph.DirOutput, Channel: ch}},
			graph.PortRef{Node: c.Graph().GraphOut(), Key: graph.PortKey{Type: graph.PortAudio, StableID: 0, Dir: graph.DirInput, Channel: ch}},
		); err != nil {
			logger.Fatalf("connecting plugin to graph-out: %v", err)
		}
	}

	if err := c.Compile(&events.LoggingSink{Log: logger}); err != nil {
		logger.Fatalf("compiling schedule: %v", err)
	}

	if err := c.PushParam(id, fakeplugin.GainParamID, *gain); err != nil {
		logger.Fatalf("pushing gain parameter: %v", err)
	}

	exec := c.Executor()
	in := make([]float32, *frames**channels)
	out := make([]float32, *frames**channels)
	for i := range in {
		in[i] = 0.1
	}

	for cycle := 0; cycle < *cycles; cycle++ {
		if err := exec.ProcessInterleaved(in, *channels, out, *channels); err != nil {
			logger.Fatalf("processing cycle %d: %v", cycle, err)
		}
		if c.OnIdle(&events.LoggingSink{Log: logger}) {
			if err := c.Compile(&events.LoggingSink{Log: logger}); err != nil {
				logger.Warnf("recompile after idle tick failed: %v", err)
			}
		}
		logger.Infof("cycle %d processed, first output sample=%f", cycle, out[0])
	}
}
