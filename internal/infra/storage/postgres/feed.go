package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgconn/ctxwatch"

	"github.com/vietddude/explorer/internal/indexing/feed"
)

// NotifyChannel is the channel the change_log triggers notify on.
const NotifyChannel = "explorer_changes"

const changeBatch = 256

// FeedSource serves change_log rows as change feeds. Each stream holds its
// own LISTEN connection and re-queries change_log on every notification or
// poll tick.
type FeedSource struct {
	url  string
	poll time.Duration
}

// NewFeedSource creates a change feed source. poll bounds how long a stream
// waits for a notification before re-checking the table.
func NewFeedSource(db *DB, poll time.Duration) *FeedSource {
	if poll <= 0 {
		poll = time.Second
	}
	return &FeedSource{url: db.url, poll: poll}
}

// Open implements feed.Source.
func (s *FeedSource) Open(ctx context.Context, collection string, after int64) (feed.Stream, error) {
	cfg, err := pgx.ParseConfig(s.url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	// Poll timeouts must not leave a cancel request in flight for the next query.
	cfg.BuildContextWatcherHandler = func(pgConn *pgconn.PgConn) ctxwatch.Handler {
		return &pgconn.DeadlineContextWatcherHandler{Conn: pgConn.Conn()}
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect change feed: %w", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
	}

	pos := after
	if after == feed.Latest {
		query := `SELECT COALESCE(MAX(seq), 0) FROM change_log WHERE collection = $1`
		if err := conn.QueryRow(ctx, query, collection).Scan(&pos); err != nil {
			_ = conn.Close(context.Background())
			return nil, fmt.Errorf("failed to read change feed tail: %w", err)
		}
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	return &changeStream{
		conn:       conn,
		collection: collection,
		poll:       s.poll,
		pos:        pos,
		ctx:        streamCtx,
		cancel:     cancel,
	}, nil
}

type changeRow struct {
	Seq int64  `db:"seq"`
	Op  string `db:"op"`
	Key string `db:"key"`
	Doc []byte `db:"doc"`
}

type changeStream struct {
	collection string
	poll       time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once

	// mu serialises use of conn between Next and Close.
	mu   sync.Mutex
	conn *pgx.Conn
	pos  int64
	buf  []*feed.Change
}

func (s *changeStream) Next(ctx context.Context) (*feed.Change, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.ctx.Err() != nil {
			return nil, feed.ErrClosed
		}
		if len(s.buf) > 0 {
			c := s.buf[0]
			s.buf = s.buf[1:]
			s.pos = c.Seq
			return c, nil
		}

		if err := s.fill(ctx); err != nil {
			return nil, s.translate(ctx, err)
		}
		if len(s.buf) > 0 {
			continue
		}

		waitCtx, waitCancel := context.WithTimeout(ctx, s.poll)
		_, err := s.conn.WaitForNotification(waitCtx)
		waitCancel()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, s.translate(ctx, err)
		}
		if err != nil && ctx.Err() != nil {
			return nil, s.translate(ctx, err)
		}
	}
}

func (s *changeStream) fill(ctx context.Context) error {
	query := `
		SELECT seq, op, key, doc FROM change_log
		WHERE collection = $1 AND seq > $2
		ORDER BY seq
		LIMIT $3
	`
	rows, err := s.conn.Query(ctx, query, s.collection, s.pos, changeBatch)
	if err != nil {
		return fmt.Errorf("failed to query change_log: %w", err)
	}
	changes, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[changeRow])
	if err != nil {
		return fmt.Errorf("failed to read change_log: %w", err)
	}

	for _, c := range changes {
		s.buf = append(s.buf, &feed.Change{Seq: c.Seq, Op: c.Op, Key: c.Key, Document: c.Doc})
	}
	return nil
}

func (s *changeStream) translate(ctx context.Context, err error) error {
	if s.ctx.Err() != nil {
		return feed.ErrClosed
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *changeStream) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Close unblocks a pending Next, then closes the connection.
func (s *changeStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		defer s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.conn.Close(ctx)
	})
	return err
}
