package logz

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelGating(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, "orchestrator")
	l.SetOutput(&buf)

	l.Info("hidden %d", 1)
	l.Warn("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "component=orchestrator")
}

func TestWithPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := New(DEBUG, "ledgerapi")
	l.SetOutput(&buf)

	l.WithPrefix("submit").WithField("seq", 7).Debug("sent")
	out := buf.String()
	assert.Contains(t, out, "ledgerapi:submit")
	assert.Contains(t, out, "seq=7")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"Error":   ERROR,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	assert.Equal(t, DEBUG, LevelFromEnv(INFO))

	t.Setenv(EnvLogLevel, "nonsense")
	assert.Equal(t, INFO, LevelFromEnv(INFO))
}
