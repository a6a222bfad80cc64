// Package health provides index health monitoring and status reporting over
// HTTP and the gRPC health protocol.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// IndexHealth contains health metrics for one index.
type IndexHealth struct {
	Index            string       `json:"index"`
	Status           SystemStatus `json:"status"`
	EngineStatus     string       `json:"engine_status"`
	TotalEntries     uint64       `json:"total_entries"`
	IndexedEntries   uint64       `json:"indexed_entries"`
	Lag              uint64       `json:"lag"`
	EntriesPerSecond float64      `json:"entries_per_second"`
	Error            string       `json:"error,omitempty"`
}

// ComponentHealth is the result of pinging a dependency.
type ComponentHealth struct {
	Name   string       `json:"name"`
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus           `json:"system_status"`
	CheckedAt    time.Time              `json:"checked_at"`
	Indexes      map[string]IndexHealth `json:"indexes"`
	Components   []ComponentHealth      `json:"components,omitempty"`
}

// worse returns the more severe of a and b.
func worse(a, b SystemStatus) SystemStatus {
	rank := func(s SystemStatus) int {
		switch s {
		case StatusCritical:
			return 2
		case StatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
