package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	d := cfg.Decoder()
	assert.Equal(t, 230, d.AudioBuffers)
	assert.Equal(t, 500, d.VideoBuffers)
	assert.Equal(t, 8192, d.BufferSize)
	assert.Equal(t, 10*time.Millisecond, d.DrainPollInterval)
	assert.Equal(t, time.Second, d.BarrierRecheck)
	assert.Equal(t, time.Second, cfg.PortRewiringTimeout())
	assert.True(t, cfg.Output.Audio.Enabled)
	assert.Empty(t, cfg.MQTT.Broker)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alohaplay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  audio_buffers: 64
  disable_flush_at_discontinuity: true
  barrier_recheck_ms: 250
output:
  video:
    enabled: false
  audio:
    sink: /tmp/audio.raw
control:
  listen: ":9000"
  max_connections: 0
mqtt:
  broker: tcp://localhost:1883
  topic_prefix: ""
log_level: decoder=debug
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	d := cfg.Decoder()
	assert.Equal(t, 64, d.AudioBuffers)
	assert.Equal(t, 500, d.VideoBuffers)
	assert.True(t, d.DisableFlushAtDiscontinuity)
	assert.Equal(t, 250*time.Millisecond, d.BarrierRecheck)
	assert.False(t, cfg.Output.Video.Enabled)
	assert.Equal(t, "/tmp/audio.raw", cfg.Output.Audio.Sink)
	assert.Equal(t, 32, cfg.Output.Audio.Queue)
	assert.Equal(t, 8, cfg.Control.MaxConnections)
	assert.Equal(t, "alohaplay", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "decoder=debug", cfg.LogLevel)
}

func TestValidation(t *testing.T) {
	for _, doc := range []string{
		"engine: {audio_buffers: 5}",
		"engine: {buffer_size: 100}",
		"engine: {drain_poll_interval_ms: 0}",
		"output: {audio: {queue: 0}}",
		"control: {listen: 'no-port'}",
		"mqtt: {broker: 'tcp://x:1883', client_id: ''}",
		"engine: [",
	} {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, doc)
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
