package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/layer-3/anchor/core"
)

const (
	credentialKey   = "credential"
	requestIDHeader = "X-Request-ID"
)

// AuthMiddleware requires a valid session token in the Authorization header
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"type": "authentication_required"})
			return
		}

		cred, err := auth.ValidateToken(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"type": "authentication_required"})
			return
		}

		c.Set(credentialKey, cred)
		c.Next()
	}
}

func credentialFrom(c *gin.Context) (*core.SessionCredential, bool) {
	v, ok := c.Get(credentialKey)
	if !ok {
		return nil, false
	}
	cred, ok := v.(*core.SessionCredential)
	return cred, ok && cred != nil
}

// RequestID echoes the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set(requestIDHeader, id)
		c.Set("request_id", id)
		c.Next()
	}
}

// Logger emits an access log line for every request.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", c.GetString("request_id")),
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Duration("latency", time.Since(start)),
		}
		if cred, ok := credentialFrom(c); ok {
			fields = append(fields, zap.String("account", cred.Account))
		}

		if len(c.Errors) > 0 {
			logger.Error("request failed", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		logger.Info("request completed", fields...)
	}
}
