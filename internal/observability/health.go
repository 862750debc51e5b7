package observability

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Status is the health of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// CheckFunc reports the health of one component.
type CheckFunc func(ctx context.Context) ComponentHealth

// ComponentHealth is one component's latest result.
type ComponentHealth struct {
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
	LatencyMs int64          `json:"latency_ms"`
	Details   map[string]any `json:"details,omitempty"`
}

// SystemHealth aggregates components; its status is the worst of them.
type SystemHealth struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"ts"`
	UptimeS    int64                      `json:"uptime_s"`
}

// HealthMonitor runs registered checks periodically and logs status
// transitions.
type HealthMonitor struct {
	interval time.Duration
	timeout  time.Duration
	started  time.Time

	mu      sync.RWMutex
	checks  map[string]CheckFunc
	results map[string]ComponentHealth
}

func NewHealthMonitor(interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthMonitor{
		interval: interval,
		timeout:  5 * time.Second,
		started:  time.Now(),
		checks:   make(map[string]CheckFunc),
		results:  make(map[string]ComponentHealth),
	}
}

func (m *HealthMonitor) Register(name string, check CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Start checks immediately and then every interval until ctx is done.
func (m *HealthMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.run(ctx)
		}
	}
}

// Check runs every check now and returns the aggregate.
func (m *HealthMonitor) Check(ctx context.Context) SystemHealth {
	m.run(ctx)
	return m.Snapshot()
}

// Snapshot returns the latest results without running checks.
func (m *HealthMonitor) Snapshot() SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := SystemHealth{
		Status:     StatusHealthy,
		Components: make(map[string]ComponentHealth, len(m.results)),
		Timestamp:  time.Now(),
		UptimeS:    int64(time.Since(m.started).Seconds()),
	}
	for name, h := range m.results {
		out.Components[name] = h
		if h.Status.severity() > out.Status.severity() {
			out.Status = h.Status
		}
	}
	return out
}

func (m *HealthMonitor) run(ctx context.Context) {
	m.mu.RLock()
	checks := make(map[string]CheckFunc, len(m.checks))
	for name, fn := range m.checks {
		checks[name] = fn
	}
	m.mu.RUnlock()

	results := make(map[string]ComponentHealth, len(checks))
	for name, fn := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
		start := time.Now()
		h := fn(checkCtx)
		cancel()
		h.Name = name
		h.CheckedAt = time.Now()
		h.LatencyMs = time.Since(start).Milliseconds()
		if h.Status == "" {
			h.Status = StatusHealthy
		}
		results[name] = h
	}

	m.mu.Lock()
	prev := m.results
	m.results = results
	m.mu.Unlock()

	for name, cur := range results {
		old, seen := prev[name]
		if seen && old.Status == cur.Status {
			continue
		}
		evt := log.Info()
		switch cur.Status {
		case StatusDegraded:
			evt = log.Warn()
		case StatusUnhealthy:
			evt = log.Error()
		}
		evt.Str("component", name).
			Str("status", string(cur.Status)).
			Str("message", cur.Message).
			Msg("health: component status changed")
	}
}

// ErrorCheck adapts a ping-style function to a CheckFunc. A non-nil error
// reports status failed.
func ErrorCheck(ping func(ctx context.Context) error, failed Status) CheckFunc {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: failed, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusHealthy}
	}
}
