package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paastest/clustertest/pkg/logger"
)

var accessLog = logger.Named("http")

// RequestLogger replaces gin.Logger() so access lines share the app's log format.
// 5xx responses are logged at error level, everything else at info.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		line := "%s %s -> %d (%s, %s)"
		args := []interface{}{c.Request.Method, c.Request.URL.Path, status, time.Since(start).Round(time.Microsecond), c.ClientIP()}
		if status >= 500 {
			accessLog.Errorf(line, args...)
			return
		}
		accessLog.Infof(line, args...)
	}
}
