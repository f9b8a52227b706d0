package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/grade-flow-api/internal/service"
)

// Metrics observes each request under its route template, so parameterized
// paths like /grade-records/:id share one label value. Unmatched routes fall
// back to the raw path, and scrapes of the metrics endpoint itself are not
// counted. A nil service disables collection.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		if route == "/metrics" {
			return
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
