package logger

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/opencasehq/casebill/internal/actorcontext"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-Id"

// MiddlewareConfig tunes the request logging middleware.
type MiddlewareConfig struct {
	// SkipPaths lists exact paths excluded from access logging, e.g.
	// health checks and the metrics endpoint.
	SkipPaths []string
}

// GinMiddleware assigns a request id, propagates the acting user into the
// request context, and writes one access log line per request.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skip[path] = struct{}{}
	}

	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Writer.Header().Set(requestIDHeader, requestID)

		ctx := actorcontext.WithRequestID(c.Request.Context(), requestID)
		if actorID := strings.TrimSpace(c.GetHeader("X-Actor-Id")); actorID != "" {
			ctx = actorcontext.WithActor(ctx, "user", actorID)
		}
		if orgID := strings.TrimSpace(c.GetHeader("X-Org-Id")); orgID != "" {
			ctx = actorcontext.WithOrgID(ctx, orgID)
		}
		c.Request = c.Request.WithContext(ctx)

		if _, skipped := skip[c.Request.URL.Path]; skipped {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		FromContext(ctx).Info("http request",
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.Any("request", SafeFieldsFromRequest(c.Request)),
		)
	}
}
