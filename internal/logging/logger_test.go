package logging

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func newTestLogger(level Level) (*Logger, *bytes.Buffer) {
	color.NoColor = true
	var out bytes.Buffer
	return &Logger{level, "test", &out, new(sync.Mutex)}, &out
}

func TestLoggerFiltersByLevel(t *testing.T) {
	log, out := newTestLogger(Info)

	log.Debug("hidden %d", 1)
	assert.Empty(t, out.String())

	log.Warn("shown %d", 2)
	line := out.String()
	assert.Contains(t, line, "W/test[logger_test.go:")
	assert.True(t, strings.HasSuffix(line, "shown 2\n"))
}

func TestLoggerTrace(t *testing.T) {
	log, out := newTestLogger(Level(5))

	log.Trace(5, "level five")
	log.Trace(6, "level six")
	assert.Contains(t, out.String(), "5/test")
	assert.NotContains(t, out.String(), "level six")
}

func TestParseLevel(t *testing.T) {
	for s, want := range map[string]Level{
		"e": Error, "WARN": Warn, "info": Info, "D": Debug, "trace": MaxLevel, "7": Level(7),
	} {
		got, err := ParseLevel(s)
		assert.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
	_, err = ParseLevel("12")
	assert.Error(t, err)
}

func TestConfigureTagLevels(t *testing.T) {
	saved := defaultLevel
	defer func() {
		defaultLevel = saved
		DefaultLogger.Level = saved
	}()

	err := Configure("warn,ticket=debug,decoder=nope")
	assert.Error(t, err)
	assert.Equal(t, Warn, DefaultLogger.Level)
	assert.Equal(t, Debug, DefaultLogger.WithTag("ticket").Level)
	assert.Equal(t, Warn, DefaultLogger.WithTag("decoder").Level)
}
