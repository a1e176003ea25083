// Package coordinator implements the Main-Thread Coordinator of
// spec.md §4.6: the single-owner facade over the abstract graph, the
// plugin host registry, the compiler, and the published schedule.
package coordinator

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/shaban/pluginhost/abi"
)

// FactoryLookup resolves a save-state plugin record's Key to the
// abi.Factory that can instantiate it. Plugin discovery and dynamic
// loading are external collaborators (spec.md §1); the coordinator only
// ever asks this function, never a filesystem or registry directly.
type FactoryLookup func(key string) (abi.Factory, error)

// Config is the coordinator's construction-time configuration, built up
// the way macaudio.EngineConfig is: required fields first, optional
// fields defaulted in New.
type Config struct {
	HostName    string
	HostVersion string

	SampleRate float64
	MinFrames  int
	MaxFrames  int

	GraphInChannels  int
	GraphOutChannels int

	// ResetTimeout/ResetPollInterval bound the idle-spin wait
	// restore_from_save_state performs for every plugin to reach
	// ready-to-deactivate before forcing an empty schedule (spec.md §5
	// "Cancellation and timeouts").
	ResetTimeout      time.Duration
	ResetPollInterval time.Duration

	// Factories resolves save-state plugin keys to factories. Required
	// for RestoreFromSaveState and AddPlugin.
	Factories FactoryLookup

	// Logger defaults to a discard-writing logger when nil, matching
	// the nil-safe ErrorHandler idiom macaudio's errors.go uses.
	Logger *log.Logger
}

func (c *Config) setDefaults() {
	if c.HostName == "" {
		c.HostName = "pluginhost"
	}
	if c.HostVersion == "" {
		c.HostVersion = "0.0.0"
	}
	if c.MinFrames <= 0 {
		c.MinFrames = 64
	}
	if c.MaxFrames <= 0 {
		c.MaxFrames = 1024
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 5 * time.Second
	}
	if c.ResetPollInterval <= 0 {
		c.ResetPollInterval = 10 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = log.New(discardWriter{})
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
