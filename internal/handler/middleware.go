package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/psds-microservice/watchparty-service/internal/auth"
	"go.uber.org/zap"
)

const (
	callerKey       = "caller"
	requestIDHeader = "X-Request-ID"
)

// RequestLogger tags each request with an id (X-Request-ID is reused when
// present) and logs method, path, status and latency.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			if id, err := uuid.NewV7(); err == nil {
				reqID = id.String()
			}
		}
		c.Header(requestIDHeader, reqID)

		c.Next()

		log.Info("http request",
			zap.String("request_id", reqID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// RequireCaller resolves the caller identity and stores it in the context;
// requests without one are rejected with 401.
func RequireCaller(a auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := a.Authenticate(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": err.Error()})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

func callerOf(c *gin.Context) string {
	return c.GetString(callerKey)
}
