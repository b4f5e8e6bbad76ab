package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/explorer/internal/core/domain"
)

// fakeSource is an in-memory change log with fault injection.
type fakeSource struct {
	mu         sync.Mutex
	log        []*Change
	wake       chan struct{}
	fetchErr   error
	failOpens  int
	replay     int64 // reopen this many sequences before the requested position
	opens      []int64
	openStream *fakeStream
}

func newFakeSource() *fakeSource {
	return &fakeSource{wake: make(chan struct{})}
}

func (s *fakeSource) broadcast() {
	close(s.wake)
	s.wake = make(chan struct{})
}

func (s *fakeSource) Append(op, key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := int64(len(s.log) + 1)
	var doc json.RawMessage
	if op != "delete" {
		doc = json.RawMessage(fmt.Sprintf(`{"hash":%q}`, key))
	}
	s.log = append(s.log, &Change{Seq: seq, Op: op, Key: key, Document: doc})
	s.broadcast()
	return seq
}

func (s *fakeSource) FailFetch(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
	s.broadcast()
}

func (s *fakeSource) Opens() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.opens...)
}

func (s *fakeSource) Open(_ context.Context, _ string, after int64) (Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opens = append(s.opens, after)
	if s.failOpens > 0 {
		s.failOpens--
		return nil, errors.New("connection refused")
	}

	pos := after
	if after == Latest {
		pos = int64(len(s.log))
	} else if pos -= s.replay; pos < 0 {
		pos = 0
	}
	st := &fakeStream{src: s, pos: pos, closed: make(chan struct{})}
	s.openStream = st
	return st, nil
}

type fakeStream struct {
	src       *fakeSource
	pos       int64
	closed    chan struct{}
	closeOnce sync.Once
}

func (st *fakeStream) Next(ctx context.Context) (*Change, error) {
	for {
		st.src.mu.Lock()
		select {
		case <-st.closed:
			st.src.mu.Unlock()
			return nil, ErrClosed
		default:
		}
		if err := st.src.fetchErr; err != nil {
			st.src.fetchErr = nil
			st.src.mu.Unlock()
			return nil, err
		}
		if st.pos < int64(len(st.src.log)) {
			c := st.src.log[st.pos]
			st.pos = c.Seq
			st.src.mu.Unlock()
			return c, nil
		}
		wake := st.src.wake
		st.src.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-st.closed:
			return nil, ErrClosed
		case <-wake:
		}
	}
}

func (st *fakeStream) Position() int64 {
	st.src.mu.Lock()
	defer st.src.mu.Unlock()
	return st.pos
}

func (st *fakeStream) Close() error {
	st.closeOnce.Do(func() { close(st.closed) })
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (r *recorder) Publish(_ context.Context, ev *domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Key
	}
	return out
}

type memTokens struct {
	mu     sync.Mutex
	tokens map[string]int64
}

func (m *memTokens) LoadToken(_ context.Context, collection string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq, ok := m.tokens[collection]
	return seq, ok, nil
}

func (m *memTokens) SaveToken(_ context.Context, collection string, seq int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[collection] = seq
	return nil
}

func testConfig(entity domain.EntityType) Config {
	return Config{Entity: entity, Collection: string(entity) + "s", PollInterval: 10 * time.Millisecond}
}

func startReader(t *testing.T, r *Reader) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- r.Start(context.Background()) }()
	require.Eventually(t, func() bool { return r.State() == StateStreaming }, time.Second, time.Millisecond)
	t.Cleanup(r.Stop)
	return errCh
}

func TestReader_PublishesInFeedOrder(t *testing.T) {
	src := newFakeSource()
	rec := &recorder{}
	r := NewReader(testConfig(domain.EntityBlock), src, nil, rec)
	startReader(t, r)

	src.Append("insert", "A")
	src.Append("update", "A")
	src.Append("insert", "B")
	src.Append("delete", "A")

	require.Eventually(t, func() bool { return len(rec.Keys()) == 4 }, time.Second, time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	ops := make([]domain.Operation, len(rec.events))
	for i, ev := range rec.events {
		ops[i] = ev.Op
		assert.Equal(t, int64(i+1), ev.Seq)
	}
	assert.Equal(t, []domain.Operation{domain.OpInsert, domain.OpUpdate, domain.OpInsert, domain.OpDelete}, ops)
	assert.Nil(t, rec.events[3].Payload)
}

func TestReader_StartsAtTailWithoutToken(t *testing.T) {
	src := newFakeSource()
	src.Append("insert", "old")
	rec := &recorder{}
	r := NewReader(testConfig(domain.EntityTx), src, nil, rec)
	startReader(t, r)

	src.Append("insert", "new")

	require.Eventually(t, func() bool { return len(rec.Keys()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"new"}, rec.Keys())
	assert.Equal(t, []int64{Latest}, src.Opens())
}

func TestReader_ReconnectsWithoutRedelivery(t *testing.T) {
	src := newFakeSource()
	src.replay = 2
	rec := &recorder{}
	r := NewReader(testConfig(domain.EntityBlock), src, nil, rec)
	startReader(t, r)

	src.Append("insert", "A")
	src.Append("insert", "B")
	require.Eventually(t, func() bool { return len(rec.Keys()) == 2 }, time.Second, time.Millisecond)

	src.FailFetch(errors.New("cursor killed"))
	require.Eventually(t, func() bool { return r.Status().Reconnects == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return r.State() == StateStreaming }, time.Second, time.Millisecond)

	src.Append("insert", "C")
	require.Eventually(t, func() bool { return len(rec.Keys()) == 3 }, time.Second, time.Millisecond)

	assert.Equal(t, []string{"A", "B", "C"}, rec.Keys())
	assert.Equal(t, []int64{Latest, 2}, src.Opens())

	st := r.Status()
	assert.Equal(t, int64(3), st.LastSeq)
	assert.Contains(t, st.LastError, "cursor killed")
}

func TestReader_OpenFailuresAreRetried(t *testing.T) {
	src := newFakeSource()
	src.failOpens = 3
	rec := &recorder{}
	r := NewReader(testConfig(domain.EntityUncle), src, nil, rec)
	startReader(t, r)

	src.Append("insert", "U1")
	require.Eventually(t, func() bool { return len(rec.Keys()) == 1 }, time.Second, time.Millisecond)
	assert.Len(t, src.Opens(), 4)
}

func TestReader_SkipsMalformedChanges(t *testing.T) {
	src := newFakeSource()
	rec := &recorder{}
	r := NewReader(testConfig(domain.EntityBlock), src, nil, rec)
	startReader(t, r)

	src.Append("drop", "X")
	src.Append("insert", "Y")

	require.Eventually(t, func() bool { return len(rec.Keys()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"Y"}, rec.Keys())
	assert.Equal(t, int64(2), r.Status().LastSeq)
}

func TestReader_ResumesFromTokenAndCheckpoints(t *testing.T) {
	src := newFakeSource()
	for _, k := range []string{"A", "B", "C", "D"} {
		src.Append("insert", k)
	}
	tokens := &memTokens{tokens: map[string]int64{"blocks": 2}}
	rec := &recorder{}

	cfg := testConfig(domain.EntityBlock)
	cfg.CheckpointEvery = 100
	r := NewReader(cfg, src, tokens, rec)
	startReader(t, r)

	require.Eventually(t, func() bool { return len(rec.Keys()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"C", "D"}, rec.Keys())

	r.Stop()
	seq, ok, _ := tokens.LoadToken(context.Background(), "blocks")
	require.True(t, ok)
	assert.Equal(t, int64(4), seq)
}

func TestReader_StopIsPromptAndIdempotent(t *testing.T) {
	src := newFakeSource()
	r := NewReader(testConfig(domain.EntityPendingTx), src, nil, &recorder{})
	errCh := startReader(t, r)

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return promptly")
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, StateStopped, r.State())

	r.Stop()
	assert.Equal(t, StateStopped, r.State())
}

func TestReader_StopWhileReconnecting(t *testing.T) {
	src := newFakeSource()
	src.failOpens = 1 << 20
	cfg := testConfig(domain.EntityAccount)
	cfg.PollInterval = time.Hour
	r := NewReader(cfg, src, nil, &recorder{})

	errCh := make(chan error, 1)
	go func() { errCh <- r.Start(context.Background()) }()
	require.Eventually(t, func() bool { return r.State() == StateReconnecting }, time.Second, time.Millisecond)

	r.Stop()
	require.NoError(t, <-errCh)
	assert.Equal(t, StateStopped, r.State())
}

func TestReader_StartTwiceFails(t *testing.T) {
	r := NewReader(testConfig(domain.EntityBlock), newFakeSource(), nil, &recorder{})
	startReader(t, r)

	assert.Error(t, r.Start(context.Background()))
}

func TestReader_FailureIsolatedPerReader(t *testing.T) {
	broken := newFakeSource()
	broken.failOpens = 1 << 20
	healthy := newFakeSource()

	brokenRec, healthyRec := &recorder{}, &recorder{}
	br := NewReader(testConfig(domain.EntityTx), broken, nil, brokenRec)
	hr := NewReader(testConfig(domain.EntityBlock), healthy, nil, healthyRec)

	go func() { _ = br.Start(context.Background()) }()
	t.Cleanup(br.Stop)
	startReader(t, hr)

	healthy.Append("insert", "A")
	require.Eventually(t, func() bool { return len(healthyRec.Keys()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, StateReconnecting, br.State())
	assert.Empty(t, brokenRec.Keys())
}

// hangingSource never finishes opening until the caller gives up.
type hangingSource struct{}

func (hangingSource) Open(ctx context.Context, _ string, _ int64) (Stream, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestReader_StopWhileStarting(t *testing.T) {
	for range 50 {
		r := NewReader(testConfig(domain.EntityTx), hangingSource{}, nil, &recorder{})

		errCh := make(chan error, 1)
		go func() { errCh <- r.Start(context.Background()) }()
		require.Eventually(t, func() bool { return r.State() != StateStopped }, time.Second, time.Microsecond)

		r.Stop()
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("reader kept running after Stop")
		}
		assert.Equal(t, StateStopped, r.State())
	}
}
