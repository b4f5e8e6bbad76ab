// Package feed tails the durable store's change feed and republishes each
// change as a normalized domain event.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/vietddude/explorer/internal/core/domain"
)

// Latest asks a Source to start at the current tail of the feed.
const Latest int64 = -1

// ErrClosed is returned by Stream.Next after Close.
var ErrClosed = errors.New("change stream closed")

// Change is a raw change record as delivered by a Source.
type Change struct {
	Seq      int64           // strictly increasing within a collection
	Op       string          // store-specific operation code
	Key      string          // identity of the changed record
	Document json.RawMessage // full document, if the store supplied one
}

// Stream is an open, ordered change feed.
type Stream interface {
	// Next blocks until the next change, ctx is done, or the stream fails.
	Next(ctx context.Context) (*Change, error)
	// Position is the sequence the stream has advanced to.
	Position() int64
	// Close releases the stream and unblocks Next. Safe to call twice.
	Close() error
}

// Source opens change feeds over one collection.
type Source interface {
	// Open starts a feed delivering changes with Seq > after, or from the
	// current tail when after is Latest.
	Open(ctx context.Context, collection string, after int64) (Stream, error)
}

// TokenStore persists resume positions across restarts.
type TokenStore interface {
	LoadToken(ctx context.Context, collection string) (int64, bool, error)
	SaveToken(ctx context.Context, collection string, seq int64) error
}

// Publisher receives normalized events.
type Publisher interface {
	Publish(ctx context.Context, ev *domain.Event)
}

var opCodes = map[string]domain.Operation{
	"insert":  domain.OpInsert,
	"update":  domain.OpUpdate,
	"replace": domain.OpUpdate,
	"delete":  domain.OpDelete,
}

// Normalize maps a raw change to a domain event. Operation codes are
// matched case-insensitively; anything unrecognised is an integrity error.
func Normalize(entity domain.EntityType, c *Change) (*domain.Event, error) {
	op, ok := opCodes[strings.ToLower(c.Op)]
	if !ok {
		return nil, domain.NewIntegrityError(entity, c.Key, "unknown operation code %q", c.Op)
	}
	if c.Key == "" {
		return nil, domain.NewIntegrityError(entity, c.Key, "change %d has no identity key", c.Seq)
	}

	ev := &domain.Event{
		Entity: entity,
		Op:     op,
		Key:    c.Key,
		Seq:    c.Seq,
	}
	if op == domain.OpDelete {
		return ev, nil
	}

	if len(c.Document) == 0 || string(c.Document) == "null" {
		return nil, domain.NewIntegrityError(entity, c.Key, "%s without document", op)
	}
	ev.Payload = c.Document
	return ev, nil
}
