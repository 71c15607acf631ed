// Package config loads the player configuration from YAML.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/lanikai/alohaplay/internal/decoder"
)

type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Output  OutputConfig  `yaml:"output"`
	Control ControlConfig `yaml:"control"`
	MQTT    MQTTConfig    `yaml:"mqtt"`

	// Log level directives, as in the LOGLEVEL environment variable.
	LogLevel string `yaml:"log_level"`
}

type EngineConfig struct {
	AudioBuffers int `yaml:"audio_buffers"`
	VideoBuffers int `yaml:"video_buffers"`
	BufferSize   int `yaml:"buffer_size"`

	DisableFlushAtDiscontinuity bool `yaml:"disable_flush_at_discontinuity"`
	EarlyFinishEvent            bool `yaml:"early_finish_event"`
	RaiseVideoPriority          bool `yaml:"raise_video_priority"`

	// Start streams as a gapless switch from the previous one.
	Gapless bool `yaml:"gapless"`

	PortRewiringTimeoutMs  int `yaml:"port_rewiring_timeout_ms"`
	DrainPollIntervalMs    int `yaml:"drain_poll_interval_ms"`
	BarrierRecheckMs       int `yaml:"barrier_recheck_ms"`
	DiscontinuityTimeoutMs int `yaml:"discontinuity_timeout_ms"`
}

type OutputConfig struct {
	Audio PortConfig `yaml:"audio"`
	Video PortConfig `yaml:"video"`
}

type PortConfig struct {
	Enabled bool `yaml:"enabled"`

	// Frames queued before writers block.
	Queue int `yaml:"queue"`

	// Hold each frame for its duration.
	Pace bool `yaml:"pace"`

	// File receiving rendered frames. Empty discards them.
	Sink string `yaml:"sink"`
}

type ControlConfig struct {
	// Listen address of the websocket control server. Empty disables it.
	Listen         string `yaml:"listen"`
	MaxConnections int    `yaml:"max_connections"`
}

type MQTTConfig struct {
	// Broker URL, e.g. tcp://localhost:1883. Empty disables publishing.
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Default returns the built-in configuration.
func Default() *Config {
	d := decoder.DefaultConfig()
	return &Config{
		Engine: EngineConfig{
			AudioBuffers:           d.AudioBuffers,
			VideoBuffers:           d.VideoBuffers,
			BufferSize:             d.BufferSize,
			RaiseVideoPriority:     true,
			PortRewiringTimeoutMs:  1000,
			DrainPollIntervalMs:    int(d.DrainPollInterval / time.Millisecond),
			BarrierRecheckMs:       int(d.BarrierRecheck / time.Millisecond),
			DiscontinuityTimeoutMs: int(d.DiscontinuityTimeout / time.Millisecond),
		},
		Output: OutputConfig{
			Audio: PortConfig{Enabled: true, Queue: 32, Pace: true},
			Video: PortConfig{Enabled: true, Queue: 8, Pace: true},
		},
		Control: ControlConfig{
			Listen:         "127.0.0.1:8570",
			MaxConnections: 8,
		},
		MQTT: MQTTConfig{
			ClientID:    "alohaplay",
			TopicPrefix: "alohaplay",
		},
	}
}

// Load reads the configuration at path on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	if err := Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Decoder returns the decoder loop settings.
func (c *Config) Decoder() decoder.Config {
	e := c.Engine
	return decoder.Config{
		AudioBuffers:                e.AudioBuffers,
		VideoBuffers:                e.VideoBuffers,
		BufferSize:                  e.BufferSize,
		DisableFlushAtDiscontinuity: e.DisableFlushAtDiscontinuity,
		EarlyFinishEvent:            e.EarlyFinishEvent,
		DrainPollInterval:           time.Duration(e.DrainPollIntervalMs) * time.Millisecond,
		BarrierRecheck:              time.Duration(e.BarrierRecheckMs) * time.Millisecond,
		DiscontinuityTimeout:        time.Duration(e.DiscontinuityTimeoutMs) * time.Millisecond,
		RaiseVideoPriority:          e.RaiseVideoPriority,
	}
}

// PortRewiringTimeout is how long a rewiring waits for the lock. Negative
// waits indefinitely.
func (c *Config) PortRewiringTimeout() time.Duration {
	return time.Duration(c.Engine.PortRewiringTimeoutMs) * time.Millisecond
}
