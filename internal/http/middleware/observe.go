package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/trackchat-backend/internal/observability"
	"github.com/yungbote/trackchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

// Observe logs every request and records it in m. Either may be nil.
func Observe(log *logger.Logger, m *observability.Metrics) gin.HandlerFunc {
	if log != nil {
		log = log.With("component", "http")
	}
	return func(c *gin.Context) {
		start := time.Now()
		m.ApiInflightInc()
		defer m.ApiInflightDec()

		c.Next()

		status := c.Writer.Status()
		elapsed := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(status), elapsed)

		if log == nil {
			return
		}
		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"path", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
		}
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			fields = append(fields, "trace_id", td.TraceID, "request_id", td.RequestID)
		}
		if od := ctxutil.GetOperatorData(c.Request.Context()); od != nil {
			fields = append(fields, "operator_id", od.OperatorID)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "error", c.Errors.Last().Error())
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Debug("HTTP request", fields...)
		}
	}
}
