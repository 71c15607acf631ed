package config

import (
	"net"

	"github.com/pkg/errors"
)

// Minimum pool sizes.
const (
	minBuffers    = 20
	minBufferSize = 1024
)

// Validate checks the configuration and fills in dependent defaults.
func Validate(cfg *Config) error {
	e := &cfg.Engine
	if e.AudioBuffers < minBuffers {
		return errors.Errorf("engine.audio_buffers must be at least %d", minBuffers)
	}
	if e.VideoBuffers < minBuffers {
		return errors.Errorf("engine.video_buffers must be at least %d", minBuffers)
	}
	if e.BufferSize < minBufferSize {
		return errors.Errorf("engine.buffer_size must be at least %d", minBufferSize)
	}
	if e.DrainPollIntervalMs <= 0 {
		return errors.New("engine.drain_poll_interval_ms must be > 0")
	}
	if e.BarrierRecheckMs <= 0 {
		return errors.New("engine.barrier_recheck_ms must be > 0")
	}
	if e.DiscontinuityTimeoutMs < 0 {
		return errors.New("engine.discontinuity_timeout_ms must be >= 0")
	}

	for name, p := range map[string]*PortConfig{"audio": &cfg.Output.Audio, "video": &cfg.Output.Video} {
		if p.Enabled && p.Queue <= 0 {
			return errors.Errorf("output.%s.queue must be > 0", name)
		}
	}

	if cfg.Control.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Control.Listen); err != nil {
			return errors.Wrap(err, "control.listen")
		}
		if cfg.Control.MaxConnections <= 0 {
			cfg.Control.MaxConnections = 8
		}
	}

	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.ClientID == "" {
			return errors.New("mqtt.client_id is required with mqtt.broker")
		}
		if cfg.MQTT.TopicPrefix == "" {
			cfg.MQTT.TopicPrefix = "alohaplay"
		}
	}
	return nil
}
