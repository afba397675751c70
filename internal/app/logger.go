package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/StricklySoft/learnhub-auth/internal/server"
	"github.com/StricklySoft/learnhub-auth/pkg/auth"
)

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("app: log level %q is not debug, info, warn or error", s)
	}
	return level, nil
}

// NewLogger builds the process logger. An invalid level falls back to
// info; Validate rejects it before this point in normal startup.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	lvl, err := parseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(correlationHandler{handler}).With("service", ServiceName)
}

// correlationHandler stamps records with the trace id and request id
// found on the logging context, unless the call already set them.
type correlationHandler struct {
	slog.Handler
}

func (h correlationHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx == nil {
		return h.Handler.Handle(ctx, r)
	}
	var hasTrace, hasRequest bool
	r.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "trace_id":
			hasTrace = true
		case "request_id":
			hasRequest = true
		}
		return true
	})
	if id, ok := auth.TraceIDFromContext(ctx); ok && !hasTrace {
		r.AddAttrs(slog.String("trace_id", id))
	}
	if id := server.RequestIDFromContext(ctx); id != "" && !hasRequest {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h correlationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return correlationHandler{h.Handler.WithAttrs(attrs)}
}

func (h correlationHandler) WithGroup(name string) slog.Handler {
	return correlationHandler{h.Handler.WithGroup(name)}
}
