package middleware

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/response"
)

// Recovery turns a handler panic into the generic 500 envelope. When the panic comes
// from a dropped client connection nothing is written back.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}

			log := logger.WithModule("http").With(
				zap.String("request_id", RequestID(c)),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
			)
			if err, ok := recovered.(error); ok && brokenConnection(err) {
				log.Warn("client connection lost", zap.Error(err))
				c.Abort()
				return
			}

			log.Error("panic recovered", zap.Any("panic", recovered), zap.Stack("stack"))
			response.Error(c, errors.ErrInternalServer)
			c.Abort()
		}()
		c.Next()
	}
}

func brokenConnection(err error) bool {
	return stderrors.Is(err, syscall.EPIPE) || stderrors.Is(err, syscall.ECONNRESET)
}

// NotFoundHandler returns a 404 envelope for unknown routes.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, errors.NewNotFound(fmt.Sprintf("Route %s %s not found", c.Request.Method, c.Request.URL.Path)))
}
