// Package gateway serves client requests and live room pushes over
// websocket connections.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vietddude/explorer/internal/core/config"
	"github.com/vietddude/explorer/internal/indexing/metrics"
)

// Gateway upgrades HTTP requests to client connections.
type Gateway struct {
	cfg      config.GatewayConfig
	registry *Registry
	hub      *Hub
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *slog.Logger
}

// New creates a gateway serving the requests in registry and the rooms of hub.
func New(cfg config.GatewayConfig, registry *Registry, hub *Hub) *Gateway {
	if cfg.PushBuffer <= 0 {
		cfg.PushBuffer = 256
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 8
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 100
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 64 << 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		cfg:      cfg,
		registry: registry,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
		log:    slog.Default().With("component", "gateway"),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.ctx.Err() != nil {
		http.Error(w, "gateway closed", http.StatusServiceUnavailable)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	g.wg.Add(1)
	defer g.wg.Done()

	c := newConn(g.ctx, ws, g)
	metrics.GatewayConnections.Inc()
	defer metrics.GatewayConnections.Dec()

	g.log.Debug("Client connected", "conn", c.ID(), "remote", r.RemoteAddr)
	c.serve(g.cfg.MaxMessageBytes)
	g.log.Debug("Client disconnected", "conn", c.ID())
}

// Close disconnects every client and waits for their goroutines to finish.
func (g *Gateway) Close(ctx context.Context) error {
	g.cancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
