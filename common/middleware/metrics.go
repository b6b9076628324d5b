package middleware

import (
	"context"
	"time"

	aws_pkg "checkout-service/pkg/aws"

	"github.com/gin-gonic/gin"
)

// Metrics records request count, latency and errors to CloudWatch off the
// request path. Routes are reported by their template, not the raw path.
func Metrics(recorder aws_pkg.MetricsRecorder, service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if recorder == nil || !recorder.IsEnabled() {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		go func(path, method string, status int, dur time.Duration) {
			mctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			dims := map[string]string{"Service": service, "Method": method, "Path": path}
			_ = recorder.RecordCount(mctx, aws_pkg.MetricHTTPRequests, dims)
			_ = recorder.RecordLatency(mctx, aws_pkg.MetricHTTPLatency, dur, dims)
			if status >= 400 {
				_ = recorder.RecordCount(mctx, aws_pkg.MetricHTTPErrors, dims)
			}
		}(path, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

// Timeout bounds every request context.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
