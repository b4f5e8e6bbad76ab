// Package health provides system health monitoring and status reporting.
package health

import "github.com/vietddude/explorer/internal/indexing/feed"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// FeedHealth contains the health of one change feed reader.
type FeedHealth struct {
	Entity     string       `json:"entity"`
	Status     SystemStatus `json:"status"`
	State      feed.State   `json:"state"`
	LastSeq    int64        `json:"last_seq"`
	Reconnects int          `json:"reconnects"`
	LastError  string       `json:"last_error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus          `json:"system_status"`
	Feeds        map[string]FeedHealth `json:"feeds"`
	Stores       map[string]int        `json:"stores"`
}

// statusOf maps a reader state to a health status.
func statusOf(s feed.State) SystemStatus {
	switch s {
	case feed.StateStreaming:
		return StatusHealthy
	case feed.StateStopped:
		return StatusCritical
	default:
		return StatusDegraded
	}
}

func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
