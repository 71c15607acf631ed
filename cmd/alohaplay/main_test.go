package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*options, *flag.FlagSet) {
	t.Helper()
	opts := &options{}
	fs := flag.NewFlagSet("alohaplay", flag.ContinueOnError)
	opts.bind(fs)
	require.NoError(t, fs.Parse(args))
	return opts, fs
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alohaplay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
output:
  audio:
    sink: /tmp/from-file.raw
control:
  listen: "127.0.0.1:9000"
engine:
  gapless: true
`), 0644))

	opts, fs := parse(t, "--config", path, "--audio-sink", "/tmp/from-flag.raw", "--no-video", "-s", "1.5s")
	cfg, err := opts.load(fs)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/from-flag.raw", cfg.Output.Audio.Sink)
	assert.False(t, cfg.Output.Video.Enabled)
	assert.True(t, cfg.Output.Audio.Enabled)
	assert.Equal(t, "127.0.0.1:9000", cfg.Control.Listen)
	assert.True(t, cfg.Engine.Gapless)
	assert.Equal(t, "1.5s", opts.start.String())
}

func TestFlagValidation(t *testing.T) {
	opts, fs := parse(t, "--listen", "nonsense")
	_, err := opts.load(fs)
	assert.Error(t, err)

	opts, fs = parse(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = opts.load(fs)
	assert.Error(t, err)
}

func TestHelpAndDecoders(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--help"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Usage: alohaplay")

	out.Reset()
	cmd = newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"decoders"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "pcmu")
	assert.Contains(t, out.String(), "4 decoders registered")

	out.Reset()
	cmd = newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "alohaplay")
}
