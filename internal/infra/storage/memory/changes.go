package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/vietddude/explorer/internal/indexing/feed"
)

// ChangeLog is an append-only in-process change feed. It implements
// feed.Source.
type ChangeLog struct {
	mu      sync.Mutex
	seq     int64
	entries map[string][]*feed.Change
	wake    chan struct{}
}

func NewChangeLog() *ChangeLog {
	return &ChangeLog{
		entries: make(map[string][]*feed.Change),
		wake:    make(chan struct{}),
	}
}

// Append records a change and wakes every waiting stream.
func (l *ChangeLog) Append(collection, op, key string, doc json.RawMessage) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	l.entries[collection] = append(l.entries[collection], &feed.Change{
		Seq:      l.seq,
		Op:       op,
		Key:      key,
		Document: doc,
	})
	close(l.wake)
	l.wake = make(chan struct{})
	return l.seq
}

// LastSeq returns the last sequence recorded for collection.
func (l *ChangeLog) LastSeq(collection string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries := l.entries[collection]
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].Seq
}

// Open implements feed.Source.
func (l *ChangeLog) Open(ctx context.Context, collection string, after int64) (feed.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pos := after
	if after == feed.Latest {
		pos = l.LastSeq(collection)
	}
	return &changeStream{log: l, collection: collection, pos: pos, closed: make(chan struct{})}, nil
}

type changeStream struct {
	log        *ChangeLog
	collection string
	closeOnce  sync.Once
	closed     chan struct{}

	mu  sync.Mutex
	pos int64
}

func (s *changeStream) Next(ctx context.Context) (*feed.Change, error) {
	for {
		select {
		case <-s.closed:
			return nil, feed.ErrClosed
		default:
		}

		s.mu.Lock()
		pos := s.pos
		s.mu.Unlock()

		s.log.mu.Lock()
		var next *feed.Change
		for _, c := range s.log.entries[s.collection] {
			if c.Seq > pos {
				next = c
				break
			}
		}
		wake := s.log.wake
		s.log.mu.Unlock()

		if next != nil {
			s.mu.Lock()
			s.pos = next.Seq
			s.mu.Unlock()
			return next, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.closed:
			return nil, feed.ErrClosed
		case <-wake:
		}
	}
}

func (s *changeStream) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *changeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
