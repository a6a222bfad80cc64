package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/logindex/internal/core/cursor"
	"github.com/vietddude/logindex/internal/core/domain"
)

// Index is the view of an indexing engine the monitor needs.
type Index interface {
	Name() string
	GetState() domain.State
	Metrics() cursor.Metrics
}

// PingFunc checks a dependency such as a database connection.
type PingFunc func(ctx context.Context) error

// Monitor aggregates health status from indexes and their dependencies.
type Monitor struct {
	indexes    []Index
	components map[string]PingFunc

	// LagThreshold marks an index degraded when more entries than this are
	// waiting. Zero disables the check.
	LagThreshold uint64
	// CacheFor reuses the last report for this long.
	CacheFor time.Duration

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

// NewMonitor creates a new health monitor.
func NewMonitor(indexes ...Index) *Monitor {
	return &Monitor{
		indexes:      indexes,
		components:   make(map[string]PingFunc),
		LagThreshold: 10000,
		CacheFor:     2 * time.Second,
	}
}

// AddComponent registers a dependency to ping on every check.
func (m *Monitor) AddComponent(name string, ping PingFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = ping
	m.lastReport = nil
}

// CheckHealth evaluates every index and component.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < m.CacheFor {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		CheckedAt:    time.Now(),
		Indexes:      make(map[string]IndexHealth, len(m.indexes)),
	}

	for _, idx := range m.indexes {
		h := m.checkIndex(idx)
		report.Indexes[h.Index] = h
		report.SystemStatus = worse(report.SystemStatus, h.Status)
	}

	names := make([]string, 0, len(m.components))
	for name := range m.components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := ComponentHealth{Name: name, Status: StatusHealthy}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := m.components[name](pingCtx); err != nil {
			c.Status = StatusDegraded
			c.Error = err.Error()
		}
		cancel()
		report.Components = append(report.Components, c)
		report.SystemStatus = worse(report.SystemStatus, c.Status)
	}

	m.lastCheck = report.CheckedAt
	m.lastReport = &report
	return report
}

func (m *Monitor) checkIndex(idx Index) IndexHealth {
	state := idx.GetState()
	h := IndexHealth{
		Index:            idx.Name(),
		Status:           StatusHealthy,
		EngineStatus:     string(state.Status),
		TotalEntries:     state.Context.TotalBlocks,
		IndexedEntries:   state.Context.IndexedBlocks,
		Lag:              state.Remaining(),
		EntriesPerSecond: idx.Metrics().EntriesPerSecond,
	}

	switch {
	case state.Status == domain.StatusError:
		h.Status = StatusCritical
		if state.Context.Error != nil {
			h.Error = state.Context.Error.Error()
		}
	case state.Status == domain.StatusPaused:
		h.Status = StatusDegraded
	case m.LagThreshold > 0 && h.Lag > m.LagThreshold:
		h.Status = StatusDegraded
	}
	return h
}
