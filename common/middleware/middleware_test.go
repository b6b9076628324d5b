package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"checkout-service/common/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingMetrics struct {
	mu     sync.Mutex
	counts []string
	done   chan struct{}
}

func (r *recordingMetrics) RecordCount(ctx context.Context, name string, dims map[string]string) error {
	r.mu.Lock()
	r.counts = append(r.counts, name+" "+dims["Path"])
	r.mu.Unlock()
	return nil
}

func (r *recordingMetrics) RecordLatency(ctx context.Context, name string, d time.Duration, dims map[string]string) error {
	close(r.done)
	return nil
}

func (r *recordingMetrics) IsEnabled() bool { return true }

func TestRequestLogger_PropagatesRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()))
	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = logger.RequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestRequestLogger_GeneratesRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRateLimit_PerUser(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Hour), 1, time.Hour)
	r := gin.New()
	r.Use(RateLimit(rl))
	r.POST("/checkout", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/checkout", nil)
		req.Header.Set("X-User-ID", user)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("u1"))
	assert.Equal(t, http.StatusTooManyRequests, do("u1"))
	assert.Equal(t, http.StatusOK, do("u2"))
}

func TestRateLimiter_EvictsIdleEntries(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(rate.Every(time.Hour), 1, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))

	now = now.Add(2 * time.Minute)
	assert.True(t, rl.Allow("u1"))
}

func TestMetrics_RecordsRouteTemplate(t *testing.T) {
	rec := &recordingMetrics{done: make(chan struct{})}
	r := gin.New()
	r.Use(Metrics(rec, "checkout-service"))
	r.GET("/checkout/attempts/:key", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/checkout/attempts/abc", nil))

	select {
	case <-rec.done:
	case <-time.After(time.Second):
		t.Fatal("metrics not recorded")
	}
	assert.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.counts) == 2
	}, time.Second, 10*time.Millisecond)
	rec.mu.Lock()
	assert.Contains(t, rec.counts, "HTTPRequests /checkout/attempts/:key")
	assert.Contains(t, rec.counts, "HTTPErrors /checkout/attempts/:key")
	rec.mu.Unlock()
}
