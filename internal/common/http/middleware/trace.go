package middleware

import (
	"context"
	"strings"

	"codeverifier/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"

	traceIDContextKey   = "trace_id"
	requestIDContextKey = "request_id"
)

// TraceContextConfig controls how trace/request id are extracted and written.
type TraceContextConfig struct {
	// TrustIncoming keeps ids supplied by the caller instead of minting new ones.
	TrustIncoming bool
	// NewID overrides the id generator; uuid.NewString when nil.
	NewID func() string
}

// TraceContextMiddleware ensures trace/request id are in context and response headers.
func TraceContextMiddleware() gin.HandlerFunc {
	return TraceContextMiddlewareWithConfig(TraceContextConfig{TrustIncoming: true})
}

// TraceContextMiddlewareWithConfig is the configurable version of TraceContextMiddleware.
func TraceContextMiddlewareWithConfig(cfg TraceContextConfig) gin.HandlerFunc {
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	resolve := func(c *gin.Context, header string) string {
		if cfg.TrustIncoming {
			if id := strings.TrimSpace(c.GetHeader(header)); id != "" {
				return id
			}
		}
		return newID()
	}

	return func(c *gin.Context) {
		traceID := resolve(c, traceIDHeader)
		requestID := resolve(c, requestIDHeader)

		c.Set(traceIDContextKey, traceID)
		c.Set(requestIDContextKey, requestID)
		ctx := context.WithValue(c.Request.Context(), contextkey.TraceID, traceID)
		ctx = context.WithValue(ctx, contextkey.RequestID, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Writer.Header().Set(traceIDHeader, traceID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		c.Next()
	}
}

// WithRuntime stores the runtime name on the request context so log lines carry it.
func WithRuntime(c *gin.Context, runtime string) {
	ctx := context.WithValue(c.Request.Context(), contextkey.Runtime, runtime)
	c.Request = c.Request.WithContext(ctx)
}
