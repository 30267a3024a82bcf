package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewLoggerFromCore(core), logs
}

func TestNewLogger_JSONFormat(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestNewLogger_ConsoleFormat(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "info", Format: "console"})
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestNewLogger_InvalidOutputPath(t *testing.T) {
	_, err := NewLogger(LogConfig{OutputPaths: []string{"/nonexistent-dir/x/y/z.log"}})
	assert.Error(t, err)
}

func TestZapLogger_FieldsAreTyped(t *testing.T) {
	l, logs := newObservedLogger(zapcore.DebugLevel)

	ts := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	l.Info("mission terminée",
		String("mission_id", "M-1"),
		Int("jours_retard", 2),
		Int64("penalite", 50000),
		Bool("force", true),
		Duration("elapsed", time.Second),
		Time("date_retour", ts),
		Any("meta", map[string]int{"a": 1}),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "mission terminée", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "M-1", ctx["mission_id"])
	assert.Equal(t, int64(2), ctx["jours_retard"])
	assert.Equal(t, int64(50000), ctx["penalite"])
	assert.Equal(t, true, ctx["force"])
	got, ok := ctx["date_retour"].(time.Time)
	require.True(t, ok)
	assert.True(t, ts.Equal(got))
}

func TestZapLogger_LevelsAndWith(t *testing.T) {
	l, logs := newObservedLogger(zapcore.InfoLevel)

	child := l.Named("settlement").With(String("contract_id", "C-1"))
	child.Debug("dropped")
	child.Info("kept")
	child.Warn("conflict")
	child.Error("boom", Err(errors.New("db down")))

	require.Equal(t, 3, logs.Len())
	for _, e := range logs.All() {
		assert.Equal(t, "settlement", e.LoggerName)
		assert.Equal(t, "C-1", e.ContextMap()["contract_id"])
	}
	assert.Equal(t, "db down", logs.All()[2].ContextMap()["error"])
}

func TestErr_Nil(t *testing.T) {
	assert.Equal(t, "<nil>", Err(nil).Value)
}

func TestWithContext_AddsRequestID(t *testing.T) {
	l, logs := newObservedLogger(zapcore.InfoLevel)

	ctx := ContextWithRequestID(context.Background(), "req-42")
	WithContext(ctx, l).Info("hello")
	WithContext(context.Background(), l).Info("plain")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "req-42", logs.All()[0].ContextMap()["request_id"])
	_, ok := logs.All()[1].ContextMap()["request_id"]
	assert.False(t, ok)
}

func TestSetLevel(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "info"})
	require.NoError(t, err)
	assert.True(t, SetLevel(l, "debug"))
	assert.False(t, SetLevel(NewNopLogger(), "debug"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestNopLogger_AllMethodsNoOp(t *testing.T) {
	l := NewNopLogger()
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
	assert.Equal(t, l, l.With(String("a", "b")))
	assert.Equal(t, l, l.Named("n"))
}

func TestSetDefault(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	l, _ := newObservedLogger(zapcore.InfoLevel)
	SetDefault(l)
	assert.Equal(t, l, Default())

	SetDefault(nil)
	assert.Equal(t, l, Default())
}
