package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hedisam/pipeline/chans"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vietddude/explorer/internal/core/domain"
	"github.com/vietddude/explorer/internal/indexing/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Conn is one client connection. Responses and room pushes travel on
// separate queues and are multiplexed onto the socket by a single writer.
type Conn struct {
	id       string
	ws       *websocket.Conn
	hub      *Hub
	registry *Registry
	limiter  *rate.Limiter
	inflight errgroup.Group

	acks   chan []byte
	pushes chan []byte

	// rooms is guarded by hub.mu.
	rooms map[string]struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	log       *slog.Logger
}

func newConn(parent context.Context, ws *websocket.Conn, g *Gateway) *Conn {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.NewString()

	c := &Conn{
		id:       id,
		ws:       ws,
		hub:      g.hub,
		registry: g.registry,
		limiter:  rate.NewLimiter(rate.Limit(g.cfg.RequestsPerSecond), g.cfg.Burst),
		acks:     make(chan []byte, 16),
		pushes:   make(chan []byte, g.cfg.PushBuffer),
		rooms:    make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
		log:      g.log.With("conn", id),
	}
	c.inflight.SetLimit(g.cfg.MaxInFlight)
	return c
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// Join adds the connection to room.
func (c *Conn) Join(room string) { c.hub.Join(c, room) }

// Leave removes the connection from room.
func (c *Conn) Leave(room string) { c.hub.Leave(c, room) }

// Close tears the connection down and deregisters it from every room. It
// is safe to call more than once and from any goroutine.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.hub.Remove(c)
		_ = c.ws.Close()
	})
}

// push enqueues a room frame without blocking. It reports false when the
// client is not keeping up.
func (c *Conn) push(data []byte) bool {
	if c.ctx.Err() != nil {
		return true
	}
	select {
	case c.pushes <- data:
		return true
	default:
		return false
	}
}

func (c *Conn) reply(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Error("Failed to encode reply", "error", err)
		return
	}
	chans.SendOrDone(c.ctx, c.acks, data)
}

// serve runs the connection until the client goes away or ctx ends.
func (c *Conn) serve(maxMessage int64) {
	defer c.Close()

	stop := context.AfterFunc(c.ctx, func() { _ = c.ws.Close() })
	defer stop()

	go c.writeLoop()

	c.ws.SetReadLimit(maxMessage)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("Connection read failed", "error", err)
			}
			break
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		if err := c.limiter.Wait(c.ctx); err != nil {
			break
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.reply(ErrorFrame{Type: frameError, Message: "malformed request"})
			continue
		}

		c.inflight.Go(func() error {
			c.dispatch(c.ctx, &req)
			return nil
		})
	}

	c.cancel()
	_ = c.inflight.Wait()
}

func (c *Conn) dispatch(ctx context.Context, req *Request) {
	d, ok := c.registry.Lookup(req.Event)
	if !ok {
		metrics.GatewayRequestsTotal.WithLabelValues("unknown", "no_such_event").Inc()
		c.reply(ErrorFrame{Type: frameError, Event: req.Event, Message: "no such event"})
		return
	}

	start := time.Now()
	defer func() {
		metrics.GatewayRequestLatency.WithLabelValues(d.Name).Observe(time.Since(start).Seconds())
	}()

	if err := d.Validate(req.Payload); err != nil {
		metrics.GatewayRequestsTotal.WithLabelValues(d.Name, "invalid").Inc()
		c.answer(req, nil, &ErrorBody{Code: CodeBadRequest, Message: err.Error()})
		return
	}

	result, err := c.invoke(ctx, d, req.Payload)
	switch {
	case err == nil:
		metrics.GatewayRequestsTotal.WithLabelValues(d.Name, "ok").Inc()
		if result != nil {
			c.answer(req, result, nil)
		}
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotFound):
		metrics.GatewayRequestsTotal.WithLabelValues(d.Name, "bad_request").Inc()
		c.answer(req, nil, &ErrorBody{Code: CodeBadRequest, Message: err.Error()})
	default:
		metrics.GatewayRequestsTotal.WithLabelValues(d.Name, "error").Inc()
		c.log.Error("Request handler failed", "event", d.Name, "error", err)
		c.answer(req, nil, &ErrorBody{Code: CodeInternalServerError, Message: "Internal Server Error"})
	}
}

func (c *Conn) invoke(ctx context.Context, d *Descriptor, payload json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: handler panicked: %v", domain.ErrInternal, r)
		}
	}()
	return d.Handle(ctx, c, payload)
}

func (c *Conn) answer(req *Request, result any, ebody *ErrorBody) {
	if req.Ack == nil {
		return
	}
	c.reply(AckFrame{Type: frameAck, Ack: *req.Ack, Error: ebody, Result: result})
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		var data []byte
		select {
		case <-c.ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case data = <-c.acks:
		case data = <-c.pushes:
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			continue
		}

		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			c.log.Debug("Connection write failed", "error", err)
			return
		}
	}
}
