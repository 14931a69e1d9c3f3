package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(level Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewFromZap(zap.New(core), level), logs
}

func TestLoggerFields(t *testing.T) {
	l, logs := newObserved(LevelDebug)

	l.Info("service created", String("service", "audio"), Int("count", 3), Error(errors.New("boom")))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "service created", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "audio", fields["service"])
	assert.EqualValues(t, 3, fields["count"])
	assert.Equal(t, "boom", fields["error"])
}

func TestLoggerLevelGate(t *testing.T) {
	l, logs := newObserved(LevelWarn)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, LevelWarn, l.GetLevel())
}

func TestSilentPropagatesToChildren(t *testing.T) {
	l, logs := newObserved(LevelDebug)
	child := l.With(String("component", "levels"))

	l.SetLevel(LevelSilent)
	child.Error("dropped")
	l.Error("dropped")

	assert.Equal(t, 0, logs.Len())
	assert.Equal(t, LevelSilent, child.GetLevel())
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"":        LevelInfo,
		"DEBUG":   LevelDebug,
		"warning": LevelWarn,
		"off":     LevelSilent,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}
