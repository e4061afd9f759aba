package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/event-reward-api/internal/service"
)

// unmatchedRoute labels requests that hit no registered route so that scanners
// cannot blow up label cardinality.
const unmatchedRoute = "unmatched"

// Metrics records latency, status and concurrency for every request. Scrapes of the
// metrics endpoint itself are not observed.
func Metrics(metricsSvc *service.MetricsService, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, path := range skipPaths {
		skip[path] = struct{}{}
	}

	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		metricsSvc.TrackInFlight(1)
		defer metricsSvc.TrackInFlight(-1)

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
