package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/learnhub-auth/internal/server"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	buf.Reset()
	return rec
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "json")

	logger.Info("dropped")
	logger.Warn("kept", "phone", "+8613800138000")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, ServiceName, rec["service"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "DEBUG", "text").Debug("hello")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "service="+ServiceName)
}

func TestNewLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "loud", "json")
	assert.False(t, logger.Enabled(t.Context(), slog.LevelDebug))
	assert.True(t, logger.Enabled(t.Context(), slog.LevelInfo))
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := parseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseLevel("verbose")
	assert.Error(t, err)
}

func TestNewLogger_CorrelationIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "json")

	traceID, err := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("b7ad6b7169203331")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))
	ctx = server.ContextWithRequestID(ctx, "req-42")

	logger.ErrorContext(ctx, "identity: insert conflicted", "provider", "phone")
	rec := decodeLine(t, &buf)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", rec["trace_id"])
	assert.Equal(t, "req-42", rec["request_id"])
	assert.Equal(t, "phone", rec["provider"])

	logger.InfoContext(ctx, "http request", "request_id", "explicit")
	rec = decodeLine(t, &buf)
	assert.Equal(t, "explicit", rec["request_id"], "an explicit attribute is not overridden")

	logger.WithGroup("http").InfoContext(context.Background(), "no ids", "status", 200)
	rec = decodeLine(t, &buf)
	assert.NotContains(t, rec, "trace_id")
	assert.NotContains(t, rec, "request_id")
}
