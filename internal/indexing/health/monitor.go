package health

import (
	"context"

	"github.com/vietddude/explorer/internal/core/domain"
	"github.com/vietddude/explorer/internal/indexing/feed"
	"github.com/vietddude/explorer/internal/indexing/metrics"
)

// StatusReporter reports the state of a change feed reader.
type StatusReporter interface {
	Status() feed.Status
}

// StoreSizer reports the number of items held per recent-item store.
type StoreSizer interface {
	Sizes() map[domain.EntityType]int
}

// Monitor aggregates health status from the feed readers and recent stores.
type Monitor struct {
	readers []StatusReporter
	stores  StoreSizer
}

// NewMonitor creates a new health monitor. stores may be nil.
func NewMonitor(readers []StatusReporter, stores StoreSizer) *Monitor {
	return &Monitor{readers: readers, stores: stores}
}

// CheckHealth reports every reader and store. The system status is the
// worst reader status; a system with no readers is critical.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	report := HealthReport{
		SystemStatus: StatusHealthy,
		Feeds:        make(map[string]FeedHealth, len(m.readers)),
		Stores:       make(map[string]int),
	}
	if len(m.readers) == 0 {
		report.SystemStatus = StatusCritical
	}

	for _, r := range m.readers {
		st := r.Status()
		fh := FeedHealth{
			Entity:     string(st.Entity),
			Status:     statusOf(st.State),
			State:      st.State,
			LastSeq:    st.LastSeq,
			Reconnects: st.Reconnects,
			LastError:  st.LastError,
		}
		report.Feeds[fh.Entity] = fh
		report.SystemStatus = worse(report.SystemStatus, fh.Status)
	}

	if m.stores != nil {
		for entity, n := range m.stores.Sizes() {
			report.Stores[string(entity)] = n
			metrics.RecentStoreSize.WithLabelValues(string(entity)).Set(float64(n))
		}
	}
	return report
}
