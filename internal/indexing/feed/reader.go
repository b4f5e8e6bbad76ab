package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/looplab/fsm"

	"github.com/vietddude/explorer/internal/core/domain"
	"github.com/vietddude/explorer/internal/indexing/metrics"
)

// State of a Reader.
type State string

const (
	StateStopped      State = "stopped"
	StateStarting     State = "starting"
	StateStreaming    State = "streaming"
	StateReconnecting State = "reconnecting"
)

var allStates = []State{StateStopped, StateStarting, StateStreaming, StateReconnecting}

const (
	evStart = "start"
	evOpen  = "open"
	evFail  = "fail"
	evStop  = "stop"
)

// Config configures a Reader.
type Config struct {
	Entity          domain.EntityType
	Collection      string
	PollInterval    time.Duration
	CheckpointEvery int
}

// Status is a point-in-time view of a Reader.
type Status struct {
	Entity     domain.EntityType `json:"entity"`
	State      State             `json:"state"`
	LastSeq    int64             `json:"last_seq"`
	Reconnects int               `json:"reconnects"`
	LastError  string            `json:"last_error,omitempty"`
}

// Reader tails one collection. Events are published in feed order on the
// goroutine that called Start.
type Reader struct {
	cfg    Config
	source Source
	tokens TokenStore
	pub    Publisher
	fsm    *fsm.FSM
	log    *slog.Logger

	mu         sync.Mutex
	stream     Stream
	cancel     context.CancelFunc
	done       chan struct{}
	lastSeq    int64
	reconnects int
	lastErr    error
	sinceSave  int
}

// NewReader creates a stopped Reader. tokens may be nil.
func NewReader(cfg Config, source Source, tokens TokenStore, pub Publisher) *Reader {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = string(cfg.Entity)
	}

	r := &Reader{
		cfg:    cfg,
		source: source,
		tokens: tokens,
		pub:    pub,
		log:    slog.Default().With("component", "feed", "entity", cfg.Entity),
	}

	r.fsm = fsm.NewFSM(
		string(StateStopped),
		fsm.Events{
			{Name: evStart, Src: []string{string(StateStopped)}, Dst: string(StateStarting)},
			{Name: evOpen, Src: []string{string(StateStarting), string(StateReconnecting)}, Dst: string(StateStreaming)},
			{Name: evFail, Src: []string{string(StateStarting), string(StateStreaming)}, Dst: string(StateReconnecting)},
			{
				Name: evStop,
				Src:  []string{string(StateStarting), string(StateStreaming), string(StateReconnecting)},
				Dst:  string(StateStopped),
			},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				metrics.FeedReaderState.WithLabelValues(string(cfg.Entity), e.Src).Set(0)
				metrics.FeedReaderState.WithLabelValues(string(cfg.Entity), e.Dst).Set(1)
				r.log.Debug("Reader state changed", "from", e.Src, "to", e.Dst)
			},
		},
	)
	for _, s := range allStates {
		metrics.FeedReaderState.WithLabelValues(string(cfg.Entity), string(s)).Set(0)
	}
	metrics.FeedReaderState.WithLabelValues(string(cfg.Entity), string(StateStopped)).Set(1)

	return r
}

// Entity returns the entity type this reader serves.
func (r *Reader) Entity() domain.EntityType { return r.cfg.Entity }

// State returns the current state.
func (r *Reader) State() State { return State(r.fsm.Current()) }

// Status returns the current state and progress.
func (r *Reader) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		Entity:     r.cfg.Entity,
		State:      r.State(),
		LastSeq:    r.lastSeq,
		Reconnects: r.reconnects,
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	return st
}

// Start runs the reader until ctx is done or Stop is called. Feed failures
// are retried forever; Start only returns an error when the reader is
// already running.
func (r *Reader) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	// Leaving stopped and publishing cancel happen under one lock, so a Stop
	// that sees the reader running can always cancel it.
	r.mu.Lock()
	if err := r.fsm.Event(ctx, evStart); err != nil {
		r.mu.Unlock()
		cancel()
		return fmt.Errorf("failed to start %s reader: %w", r.cfg.Entity, err)
	}
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	defer close(done)
	defer r.shutdown()

	after := r.resumePosition(ctx)
	stream, err := r.source.Open(ctx, r.cfg.Collection, after)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		r.fail(ctx, "open", err)
		if stream, err = r.reconnect(ctx); err != nil {
			return nil
		}
	} else {
		r.attach(stream)
		r.transition(ctx, evOpen)
	}
	r.log.Info("Change feed reader streaming", "collection", r.cfg.Collection, "after", after)

	for {
		change, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.fail(ctx, "fetch", err)
			if stream, err = r.reconnect(ctx); err != nil {
				return nil
			}
			continue
		}
		r.handle(ctx, change)
	}
}

// Stop cancels the reader, closes its stream and waits for Start to return.
// Calling Stop on a stopped reader is a no-op.
func (r *Reader) Stop() {
	r.mu.Lock()
	cancel, stream, done := r.cancel, r.stream, r.done
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if stream != nil {
		_ = stream.Close()
	}
	<-done
}

func (r *Reader) handle(ctx context.Context, change *Change) {
	r.mu.Lock()
	last := r.lastSeq
	r.mu.Unlock()

	// Sources replay from the reopen position; never deliver a seen change twice.
	if change.Seq <= last {
		return
	}

	ev, err := Normalize(r.cfg.Entity, change)
	if err != nil {
		metrics.IntegrityErrorsTotal.WithLabelValues(string(r.cfg.Entity), "normalize").Inc()
		r.log.Error("Skipping malformed change", "seq", change.Seq, "key", change.Key, "error", err)
	} else {
		r.pub.Publish(ctx, ev)
		metrics.FeedEventsTotal.WithLabelValues(string(ev.Entity), string(ev.Op)).Inc()
	}

	r.mu.Lock()
	r.lastSeq = change.Seq
	r.sinceSave++
	checkpoint := r.cfg.CheckpointEvery > 0 && r.sinceSave >= r.cfg.CheckpointEvery
	r.mu.Unlock()

	metrics.FeedLastSequence.WithLabelValues(string(r.cfg.Entity)).Set(float64(change.Seq))
	if checkpoint {
		r.checkpoint(ctx)
	}
}

// resumePosition picks the reopen point: the last seen sequence, then a
// persisted token, then the live tail.
func (r *Reader) resumePosition(ctx context.Context) int64 {
	r.mu.Lock()
	last := r.lastSeq
	r.mu.Unlock()
	if last > 0 {
		return last
	}

	if r.tokens != nil {
		seq, ok, err := r.tokens.LoadToken(ctx, r.cfg.Collection)
		if err != nil {
			r.log.Warn("Failed to load resume token, starting at tail", "error", err)
		} else if ok {
			r.mu.Lock()
			r.lastSeq = seq
			r.mu.Unlock()
			return seq
		}
	}
	return Latest
}

func (r *Reader) reconnect(ctx context.Context) (Stream, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(r.cfg.PollInterval):
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(r.cfg.PollInterval), ctx)
	stream, err := backoff.RetryNotifyWithData(
		func() (Stream, error) {
			return r.source.Open(ctx, r.cfg.Collection, r.resumePosition(ctx))
		},
		policy,
		func(err error, wait time.Duration) {
			r.recordErr(err)
			metrics.FeedErrorsTotal.WithLabelValues(string(r.cfg.Entity), "open").Inc()
			r.log.Warn("Change feed reopen failed", "error", err, "retry_in", wait)
		},
	)
	if err != nil {
		return nil, err
	}

	r.attach(stream)
	r.mu.Lock()
	r.reconnects++
	r.mu.Unlock()
	metrics.FeedReconnectsTotal.WithLabelValues(string(r.cfg.Entity)).Inc()
	r.transition(ctx, evOpen)
	r.log.Info("Change feed reconnected", "position", stream.Position())
	return stream, nil
}

func (r *Reader) attach(stream Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stream = stream
	if pos := stream.Position(); pos > r.lastSeq {
		r.lastSeq = pos
	}
}

func (r *Reader) fail(ctx context.Context, kind string, err error) {
	err = fmt.Errorf("%w: %v", domain.ErrFeed, err)
	r.recordErr(err)
	metrics.FeedErrorsTotal.WithLabelValues(string(r.cfg.Entity), kind).Inc()
	r.log.Warn("Change feed failed, reconnecting", "kind", kind, "error", err, "wait", r.cfg.PollInterval)

	r.mu.Lock()
	stream := r.stream
	r.stream = nil
	r.mu.Unlock()
	if stream != nil {
		_ = stream.Close()
	}
	r.transition(ctx, evFail)
}

func (r *Reader) recordErr(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}

func (r *Reader) checkpoint(ctx context.Context) {
	if r.tokens == nil {
		return
	}

	r.mu.Lock()
	seq := r.lastSeq
	r.sinceSave = 0
	r.mu.Unlock()

	if seq <= 0 {
		return
	}
	if err := r.tokens.SaveToken(ctx, r.cfg.Collection, seq); err != nil {
		r.log.Warn("Failed to save resume token", "seq", seq, "error", err)
	}
}

func (r *Reader) shutdown() {
	r.mu.Lock()
	stream := r.stream
	r.stream = nil
	r.cancel = nil
	r.mu.Unlock()

	if stream != nil {
		_ = stream.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.checkpoint(ctx)
	r.transition(ctx, evStop)
	r.log.Info("Change feed reader stopped")
}

func (r *Reader) transition(ctx context.Context, event string) {
	if err := r.fsm.Event(ctx, event); err != nil {
		var noop fsm.NoTransitionError
		if errors.As(err, &noop) {
			return
		}
		r.log.Error("Invalid reader transition", "event", event, "state", r.fsm.Current(), "error", err)
	}
}
