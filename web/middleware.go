package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skekre98/composer/logging"
)

type Ctx = *gin.Context
type Handler = gin.HandlerFunc
type Router = gin.IRouter

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// RequestID propagates the caller's request id or mints one.
func RequestID() Handler {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Set(requestIDKey, id)
		c.Next()
	}
}

// RequestIDFrom returns the id set by RequestID.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// AccessLog logs one line per request once it completes.
func AccessLog(l *slog.Logger) Handler {
	if l == nil {
		l = logging.Discard()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.LogAttrs(c.Request.Context(), slog.LevelInfo, "http_access",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("req_id", RequestIDFrom(c)),
		)
	}
}

// Problem is an RFC 7807 problem document.
type Problem struct {
	Type   string         `json:"type"`
	Title  string         `json:"title"`
	Status int            `json:"status"`
	Detail string         `json:"detail,omitempty"`
	Extra  map[string]any `json:"extensions,omitempty"`
}

// WriteProblem aborts c with a problem+json body.
func WriteProblem(c *gin.Context, status int, detail string, extra map[string]any) {
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(status, Problem{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
		Extra:  extra,
	})
}

// RecoveryProblem turns panics into a 500 problem response.
func RecoveryProblem(l *slog.Logger) Handler {
	if l == nil {
		l = logging.Discard()
	}
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				l.Error("panic", "error", rec, "req_id", RequestIDFrom(c))
				WriteProblem(c, http.StatusInternalServerError, "unexpected server error", nil)
			}
		}()
		c.Next()
	}
}
