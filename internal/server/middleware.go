package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
)

// HeaderRequestID is read from the request and echoed on the response.
const HeaderRequestID = "x-request-id"

const requestIDKey = "request_id"

// maxRequestIDLen bounds client-supplied ids so they cannot bloat logs.
const maxRequestIDLen = 128

type requestIDContextKey struct{}

// RequestID returns the id assigned by the request id middleware.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// ContextWithRequestID attaches a request id to ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext returns the request id carried by ctx.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}

// requestIDMiddleware accepts an inbound x-request-id or generates a
// UUID, and stores it on the gin context, the request context, and the
// response header.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Request = c.Request.WithContext(ContextWithRequestID(c.Request.Context(), id))
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// loggingMiddleware logs one line per request once the handler chain has
// finished.
func loggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"request_id", RequestID(c),
		)
	}
}

// recoveryMiddleware turns a handler panic into an enveloped 500.
func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		s.logger.ErrorContext(c.Request.Context(), "server: handler panicked",
			"panic", recovered,
			"request_id", RequestID(c),
		)
		s.respondError(c, sserr.New(sserr.CodeInternal, "server: handler panicked"))
	})
}
