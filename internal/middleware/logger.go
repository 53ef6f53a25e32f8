package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/charlesng35/authcore/pkg/logger"
)

const (
	// RequestIDHeader carries the correlation id in both directions.
	RequestIDHeader = "X-Request-ID"
	// CtxRequestIDKey stores the correlation id on the gin context.
	CtxRequestIDKey = "requestID"

	maxRequestIDLength = 64
)

// Logger assigns a request id and writes one structured access log line per request.
// Server errors log at error level, client errors at warn, health probes at debug.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := inboundRequestID(c.GetHeader(RequestIDHeader))
		c.Set(CtxRequestIDKey, requestID)
		c.Writer.Header().Set(RequestIDHeader, requestID)

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if userID := c.GetString(CtxUserIDKey); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if ce := logger.WithModule("http").Check(accessLevel(c.Request.URL.Path, status), "request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

// RequestID returns the correlation id assigned by Logger.
func RequestID(c *gin.Context) string {
	return c.GetString(CtxRequestIDKey)
}

func accessLevel(path string, status int) zapcore.Level {
	switch {
	case status >= 500:
		return zapcore.ErrorLevel
	case status >= 400:
		return zapcore.WarnLevel
	case strings.HasPrefix(path, "/health"):
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// inboundRequestID keeps a caller-supplied id when it is short and printable.
func inboundRequestID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxRequestIDLength {
		return uuid.NewString()
	}
	for _, r := range value {
		if r < 0x21 || r > 0x7e {
			return uuid.NewString()
		}
	}
	return value
}
