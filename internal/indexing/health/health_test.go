package health

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/explorer/internal/core/domain"
	"github.com/vietddude/explorer/internal/indexing/feed"
)

// =============================================================================
// Stubs
// =============================================================================

type stubReader struct {
	entity domain.EntityType
	state  feed.State
}

func (s *stubReader) Status() feed.Status {
	return feed.Status{Entity: s.entity, State: s.state, LastSeq: 7}
}

type stubStores map[domain.EntityType]int

func (s stubStores) Sizes() map[domain.EntityType]int { return s }

func readers(states ...feed.State) []StatusReporter {
	out := make([]StatusReporter, len(states))
	for i, st := range states {
		out[i] = &stubReader{entity: domain.Entities[i], state: st}
	}
	return out
}

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_Status(t *testing.T) {
	tests := []struct {
		name   string
		states []feed.State
		want   SystemStatus
	}{
		{"all streaming", []feed.State{feed.StateStreaming, feed.StateStreaming}, StatusHealthy},
		{"one reconnecting", []feed.State{feed.StateStreaming, feed.StateReconnecting}, StatusDegraded},
		{"one starting", []feed.State{feed.StateStarting, feed.StateStreaming}, StatusDegraded},
		{"one stopped", []feed.State{feed.StateReconnecting, feed.StateStopped}, StatusCritical},
		{"no readers", nil, StatusCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := NewMonitor(readers(tt.states...), nil).CheckHealth(context.Background())
			assert.Equal(t, tt.want, report.SystemStatus)
			assert.Len(t, report.Feeds, len(tt.states))
		})
	}
}

func TestMonitor_ReportsFeedsAndStores(t *testing.T) {
	m := NewMonitor(
		readers(feed.StateStreaming, feed.StateReconnecting),
		stubStores{domain.EntityBlock: 3, domain.EntityTx: 12},
	)

	report := m.CheckHealth(context.Background())
	require.Contains(t, report.Feeds, "block")
	assert.Equal(t, StatusHealthy, report.Feeds["block"].Status)
	assert.Equal(t, StatusDegraded, report.Feeds["tx"].Status)
	assert.Equal(t, int64(7), report.Feeds["tx"].LastSeq)
	assert.Equal(t, map[string]int{"block": 3, "tx": 12}, report.Stores)
}

func TestServer_Endpoints(t *testing.T) {
	healthy := NewServer(NewMonitor(readers(feed.StateStreaming), nil), 0)
	rec := httptest.NewRecorder()
	healthy.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	critical := NewServer(NewMonitor(readers(feed.StateStopped), nil), 0)
	rec = httptest.NewRecorder()
	critical.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	critical.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
	var report HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, feed.StateStopped, report.Feeds["block"].State)

	critical.Mount("/ws", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec = httptest.NewRecorder()
	critical.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestGRPCServer_ReportsPerFeed(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewGRPCServer(NewMonitor(readers(feed.StateStreaming, feed.StateStopped), nil), 0)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx := context.Background()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "feed.block"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "feed.tx"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}
