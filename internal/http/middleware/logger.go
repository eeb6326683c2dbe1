package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Logger writes one structured line per request, at error level for 5xx
// responses so failed pipeline runs stand out.
func Logger(l zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		rid, _ := c.Get(RequestIDHeader)
		ridStr, _ := rid.(string)

		evt := l.Info()
		if status >= http.StatusInternalServerError {
			evt = l.Error()
		}
		if len(c.Errors) > 0 {
			evt = evt.Strs("errors", c.Errors.Errors())
		}
		evt.
			Str("request_id", ridStr).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", latency).
			Msg("request")
	}
}
