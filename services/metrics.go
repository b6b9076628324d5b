package services

import (
	"context"
	"time"

	aws_pkg "checkout-service/pkg/aws"
	"checkout-service/resilience"

	"go.uber.org/zap"
)

// recorder sends checkout counters off the request path.
type recorder struct {
	metrics aws_pkg.MetricsRecorder
}

func (r recorder) count(name string, dims map[string]string) {
	if r.metrics == nil || !r.metrics.IsEnabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.metrics.RecordCount(ctx, name, dims)
	}()
}

func (r recorder) latency(name string, d time.Duration, dims map[string]string) {
	if r.metrics == nil || !r.metrics.IsEnabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.metrics.RecordLatency(ctx, name, d, dims)
	}()
}

// retryPolicy returns cfg instrumented with retry logging and the retry counter.
func (r recorder) retryPolicy(cfg resilience.Config, log *zap.Logger, op string) resilience.Config {
	cfg = cfg.Logging(log, op)
	prev := cfg.OnRetry
	cfg.OnRetry = func(attempt int, backoff time.Duration, err error) {
		prev(attempt, backoff, err)
		r.count(aws_pkg.MetricCheckoutRetries, map[string]string{"Operation": op})
	}
	return cfg
}
