package rest

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yedhukrishnan/performance-backend/internal/auth"
	"github.com/yedhukrishnan/performance-backend/internal/counter"
	"github.com/yedhukrishnan/performance-backend/internal/identity"
	"github.com/yedhukrishnan/performance-backend/internal/registry"
	"github.com/yedhukrishnan/performance-backend/internal/storage"
	"github.com/yedhukrishnan/performance-backend/internal/types"
	"github.com/yedhukrishnan/performance-backend/internal/validation"
	"go.uber.org/zap"
)

// LoggerMiddleware logs one line per request.
func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("HTTP request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Info("HTTP request", fields...)
		}
	}
}

// CORSMiddleware allows credentialed requests from the configured origins.
// Cookies carry the client id, so a wildcard origin is never sent.
func CORSMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && allowed[origin] {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// ImmutableCacheMiddleware marks static assets cacheable for a year.
func ImmutableCacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasSuffix(c.Request.URL.Path, "/") {
			c.Header("Cache-Control", "public, max-age=31536000, immutable")
		}
		c.Next()
	}
}

// respondError maps a domain error onto the JSON error envelope.
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, validation.ErrInvalidBody):
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid request body", err.Error()))
	case errors.Is(err, identity.ErrMissingClientID):
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeMissingClientID, "Client id cookie required", nil))
	case errors.Is(err, counter.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse(types.CodeUnauthenticated, "Login required", nil))
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse(types.CodeUnauthenticated, "Invalid credentials", nil))
	case errors.Is(err, auth.ErrInvalidRefresh):
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse(types.CodeUnauthenticated, "Invalid or expired refresh token", nil))
	case errors.Is(err, auth.ErrUsernameTaken):
		c.JSON(http.StatusConflict, types.NewErrorResponse(types.CodeUsernameTaken, "Username or email already registered", nil))
	case errors.Is(err, storage.ErrDuplicateAction):
		c.JSON(http.StatusConflict, types.NewErrorResponse(types.CodeDuplicateAction, "Action already recorded", nil))
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeNotFound, "Not found", nil))
	case errors.Is(err, registry.ErrRegistryUnavailable):
		s.logger.Warn("Subscription registry unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(types.CodeUnavailable, "Live updates temporarily unavailable", nil))
	default:
		s.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.CodeInternal, "Internal server error", nil))
	}
}

func badRequest(c *gin.Context, message string, details any) {
	c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, message, details))
}
