package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	r := NewRegistry()
	c := r.Counter("c_total", "test counter")
	c.Inc()
	c.Add(2.5)
	c.Add(-1)
	assert.InDelta(t, 3.5, c.Value(), 1e-9)
	assert.Same(t, c, r.Counter("c_total", "ignored"))
}

func TestCounter_Concurrent(t *testing.T) {
	c := NewRegistry().Counter("c_total", "")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5000.0, c.Value())
}

func TestGauge(t *testing.T) {
	g := NewRegistry().Gauge("g", "")
	assert.Equal(t, 0.0, g.Value())
	g.Set(-0.125)
	assert.Equal(t, -0.125, g.Value())
}

func TestHistogram(t *testing.T) {
	h := NewRegistry().Histogram("h", "", []float64{100, 10, 50})
	for _, v := range []float64{5, 20, 60, 500} {
		h.Observe(v)
	}
	bounds, buckets, sum, count := h.Snapshot()
	assert.Equal(t, []float64{10, 50, 100}, bounds)
	assert.Equal(t, []int64{1, 2, 3}, buckets)
	assert.Equal(t, 585.0, sum)
	assert.Equal(t, int64(4), count)
}

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	m.EntriesOpened.Inc()
	m.ExposureSOL.Set(0.35)
	m.Scores.Observe(77)

	out := NewExporter(m.Registry).Format()
	assert.Contains(t, out, "# TYPE ghost_entries_opened_total counter\nghost_entries_opened_total 1\n")
	assert.Contains(t, out, "ghost_exposure_sol 0.35\n")
	assert.Contains(t, out, "ghost_candidate_score_bucket{le=\"85\"} 1\n")
	assert.Contains(t, out, "ghost_candidate_score_bucket{le=\"70\"} 0\n")
	assert.Contains(t, out, "ghost_candidate_score_count 1\n")
}

func TestExporter_ServeHTTP(t *testing.T) {
	m := NewMetrics()
	m.ScansTotal.Add(3)

	rec := httptest.NewRecorder()
	NewExporter(m.Registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Contains(t, rec.Body.String(), "ghost_scans_total 3\n")
}

func TestExporter_OrderedOutput(t *testing.T) {
	r := NewRegistry()
	r.Counter("b_total", "b")
	r.Counter("a_total", "a")
	out := NewExporter(r).Format()
	assert.Less(t, strings.Index(out, "a_total"), strings.Index(out, "b_total"))
}

func TestHealthMonitor_Aggregate(t *testing.T) {
	m := NewHealthMonitor(time.Hour)
	m.Register("rpc", ErrorCheck(func(context.Context) error { return nil }, StatusUnhealthy))
	m.Register("redis", ErrorCheck(func(context.Context) error { return errors.New("timeout") }, StatusDegraded))

	h := m.Check(context.Background())
	assert.Equal(t, StatusDegraded, h.Status)
	require.Contains(t, h.Components, "redis")
	assert.Equal(t, "timeout", h.Components["redis"].Message)
	assert.Equal(t, "rpc", h.Components["rpc"].Name)

	m.Register("storage", func(context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusUnhealthy}
	})
	assert.Equal(t, StatusUnhealthy, m.Check(context.Background()).Status)
}

func TestHealthMonitor_StartRunsImmediately(t *testing.T) {
	m := NewHealthMonitor(time.Hour)
	m.Register("rpc", func(context.Context) ComponentHealth { return ComponentHealth{} })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := m.Snapshot().Components["rpc"]
		return ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatusHealthy, m.Snapshot().Status)

	cancel()
	<-done
}
