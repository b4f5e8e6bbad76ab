package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Use pgx via database/sql
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/vietddude/explorer/internal/indexing/metrics"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Config holds PostgreSQL connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// DB wraps the PostgreSQL connection.
type DB struct {
	*sqlx.DB
	url string
}

// NewDB creates a new database connection.
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	db, err := sqlx.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set pool configuration
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	} else {
		db.SetMaxOpenConns(10)
	}

	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	} else {
		db.SetMaxIdleConns(2)
	}

	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, url: cfg.URL}, nil
}

// Migrate applies the embedded schema migrations.
func (db *DB) Migrate() error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.Up(db.DB.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to migrate db: %w", err)
	}
	return nil
}

// MigrationVersion returns the applied schema version.
func (db *DB) MigrationVersion() (int64, error) {
	if err := goose.SetDialect("postgres"); err != nil {
		return 0, err
	}
	v, err := goose.GetDBVersion(db.DB.DB)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// StartMetricsCollector starts a background goroutine to collect DB metrics.
func (db *DB) StartMetricsCollector(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := db.Stats()
				// MaxOpenConnections is 0 when unlimited.
				if stats.MaxOpenConnections > 0 {
					usage := float64(stats.OpenConnections) / float64(stats.MaxOpenConnections) * 100
					metrics.DBConnectionPoolUsage.Set(usage)
				}
			}
		}
	}()
}

// Health checks if the database is healthy.
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

// TableCount is the row count of one table.
type TableCount struct {
	Table string `db:"table_name"`
	Rows  int64  `db:"row_count"`
}

// Counts returns the row count of every explorer table.
func (db *DB) Counts(ctx context.Context) ([]TableCount, error) {
	query := `
		SELECT 'blocks' AS table_name, COUNT(*) AS row_count FROM blocks
		UNION ALL SELECT 'transactions', COUNT(*) FROM transactions
		UNION ALL SELECT 'pending_transactions', COUNT(*) FROM pending_transactions
		UNION ALL SELECT 'uncles', COUNT(*) FROM uncles
		UNION ALL SELECT 'accounts', COUNT(*) FROM accounts
	`
	var counts []TableCount
	if err := db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}
	return counts, nil
}

// CollectionSeq is the last change sequence recorded for a collection.
type CollectionSeq struct {
	Collection string `db:"collection"`
	Seq        int64  `db:"seq"`
}

// LastSequences returns the newest change_log sequence per collection.
func (db *DB) LastSequences(ctx context.Context) ([]CollectionSeq, error) {
	query := `SELECT collection, MAX(seq) AS seq FROM change_log GROUP BY collection ORDER BY collection`
	var seqs []CollectionSeq
	if err := db.SelectContext(ctx, &seqs, query); err != nil {
		return nil, fmt.Errorf("failed to read change sequences: %w", err)
	}
	return seqs, nil
}

// getDoc loads a single JSONB document and decodes it into T.
func getDoc[T any](ctx context.Context, db *DB, query string, args ...any) (*T, error) {
	var raw []byte
	err := db.GetContext(ctx, &raw, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return &v, nil
}

// selectDocs loads a list of JSONB documents and decodes each into T.
func selectDocs[T any](ctx context.Context, db *DB, query string, args ...any) ([]*T, error) {
	var raws [][]byte
	if err := db.SelectContext(ctx, &raws, query, args...); err != nil {
		return nil, err
	}

	out := make([]*T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		out = append(out, &v)
	}
	return out, nil
}
