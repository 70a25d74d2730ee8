package middleware

import (
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/tenx-cards/internal/common"
	"github.com/suPer8Hu/tenx-cards/internal/logger"
)

// Recovery turns panics into a generic 500 without leaking details.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Nop()
	}
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					"path", c.Request.URL.Path,
					"request_id", c.GetString(RequestIDKey),
					"panic", r,
					"stack", string(debug.Stack()),
				)
				if !c.Writer.Written() {
					common.Internal(c)
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
