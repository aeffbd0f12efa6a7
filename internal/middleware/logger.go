package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"glazestudio/internal/pkg/logger"
	"glazestudio/internal/pkg/response"
)

// RequestLogger logs every request and recovers from panics. Panics and 5xx
// answers are logged with a stack trace.
func RequestLogger(l *zap.Logger) gin.HandlerFunc {
	log := logger.OrNop(l)
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				err := fmt.Errorf("%v", recovered)
				log.Error("request panic", append(requestFields(c, start), zap.Error(err), zap.ByteString("stack", debug.Stack()))...)
				if !c.Writer.Written() {
					response.Error(c, http.StatusInternalServerError, response.CodeInternal, "Internal Server Error")
				}
				c.Abort()
				return
			}

			for _, e := range c.Errors {
				log.Error("request error", append(requestFields(c, start), zap.Error(e.Err), zap.Any("meta", e.Meta))...)
			}
			status := c.Writer.Status()
			switch {
			case status >= http.StatusInternalServerError:
				log.Error("request failed", requestFields(c, start)...)
			case status >= http.StatusBadRequest:
				log.Info("request rejected", requestFields(c, start)...)
			default:
				log.Debug("request", requestFields(c, start)...)
			}
		}()

		c.Next()
	}
}

func requestFields(c *gin.Context, start time.Time) []zap.Field {
	return []zap.Field{
		zap.Int("status", c.Writer.Status()),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("query", c.Request.URL.RawQuery),
		zap.String("client_ip", c.ClientIP()),
		zap.String("username", c.GetString(CtxUsername)),
		zap.String("request_id", requestID(c)),
		zap.Duration("latency", time.Since(start)),
	}
}

func requestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = c.GetHeader("X-Request-Id")
	}
	return requestID
}
