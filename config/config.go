package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Load reads a JSON configuration file on top of the defaults.
func Load(path string) (cfg *Config, err error) {
	cfg = Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	err = json.Unmarshal(data, cfg)
	if err != nil {
		return
	}

	err = cfg.Validate()

	return
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Command:           "ping",
		TickRate:          Interval{Duration: 250 * time.Millisecond},
		BatchSize:         5,
		SequenceHeadroom:  5,
		LatencyHeadroom:   5.0,
		InitialMaxSeq:     100,
		InitialMaxLatency: 10.0,
		LogLevel:          "info",
		QuitKeys:          []string{"q", "ctrl+c"},
	}
}

type Config struct {
	// Command is the probing tool, looked up in PATH.
	Command string   `json:"command"`
	Args    []string `json:"args"`

	// Replay reads a captured transcript instead of running Command.
	Replay Replay `json:"replay"`

	TickRate  Interval `json:"tick_rate"`
	BatchSize int      `json:"batch_size"`

	SequenceHeadroom  float64 `json:"sequence_headroom"`
	LatencyHeadroom   float64 `json:"latency_headroom"`
	InitialMaxSeq     float64 `json:"initial_max_seq"`
	InitialMaxLatency float64 `json:"initial_max_latency"`

	LogFile  string `json:"log_file"`
	LogLevel string `json:"log_level"`

	// MetricsAddr enables the prometheus endpoint when set, e.g. ":9100".
	MetricsAddr string `json:"metrics_addr"`

	Headless bool     `json:"headless"`
	QuitKeys []string `json:"quit_keys"`
}

type Replay struct {
	Path   string `json:"path"`
	Follow bool   `json:"follow"`
}

// Validate rejects settings the session cannot run with.
func (c *Config) Validate() error {
	if c.Command == "" && c.Replay.Path == "" {
		return errors.New("either a command or a replay path is required")
	}
	if c.TickRate.Duration <= 0 {
		return fmt.Errorf("tick_rate must be > 0, got %v", c.TickRate.Duration)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be >= 1, got %d", c.BatchSize)
	}
	if c.SequenceHeadroom < 0 || c.LatencyHeadroom < 0 {
		return errors.New("headroom must not be negative")
	}
	if c.InitialMaxSeq <= 0 || c.InitialMaxLatency <= 0 {
		return errors.New("initial bounds must be > 0")
	}
	if len(c.QuitKeys) == 0 {
		return errors.New("at least one quit key is required")
	}
	if c.Replay.Follow && c.Replay.Path == "" {
		return errors.New("replay follow needs a replay path")
	}

	return nil
}

type Interval struct {
	time.Duration
}

func (d *Interval) UnmarshalJSON(data []byte) (err error) {
	var pstr string
	err = json.Unmarshal(data, &pstr)
	if err != nil {
		return err
	}
	d.Duration, err = time.ParseDuration(pstr)
	return
}

func (d Interval) MarshalJSON() (data []byte, err error) {
	s := d.Duration.String()
	data, err = json.Marshal(s)
	return
}
