// Package postgres provides the Postgres-backed scrape data store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/poolspel/matchdata-crawler/internal/scrape"
)

// DB is the subset of pgxpool.Pool the store needs, so tests can hand in a
// pgxmock pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements scrape.DataStore.
//
// Schema:
//
//	CREATE TABLE scraped_data (
//	    match_id   TEXT NOT NULL,
//	    data_type  TEXT NOT NULL,
//	    payload    JSONB NOT NULL,
//	    scraped_at TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (match_id, data_type)
//	);
//
//	CREATE TABLE scrape_operations (
//	    id            BIGSERIAL PRIMARY KEY,
//	    match_id      TEXT NOT NULL,
//	    data_type     TEXT NOT NULL,
//	    status        TEXT NOT NULL,
//	    error_message TEXT,
//	    duration_ms   BIGINT,
//	    retry_count   INT,
//	    tokens_in     INT,
//	    tokens_out    INT,
//	    created_at    TIMESTAMPTZ NOT NULL
//	);
type Store struct {
	db    DB
	clock scrape.Clock
}

// New connects a pool and wraps it in a Store.
func New(ctx context.Context, dsn string, clock scrape.Clock) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("create connection pool: %w", err)
	}
	return NewWithDB(pool, clock), pool, nil
}

// NewWithDB wraps an existing pool (or mock).
func NewWithDB(db DB, clock scrape.Clock) *Store {
	return &Store{db: db, clock: clock}
}

// UpsertScrapedData stores the merged payload for (matchID, dataType).
func (s *Store) UpsertScrapedData(ctx context.Context, matchID string, dataType scrape.DataType, payload scrape.Object) error {
	raw, err := payload.JSON()
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	query := `
		INSERT INTO scraped_data (match_id, data_type, payload, scraped_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (match_id, data_type) DO UPDATE
		SET payload = EXCLUDED.payload, scraped_at = EXCLUDED.scraped_at;
	`
	if _, err := s.db.Exec(ctx, query, matchID, string(dataType), raw, s.clock.Now()); err != nil {
		return fmt.Errorf("upsert scraped data: %w", err)
	}
	return nil
}

// ReadExistingScrapedData returns the stored payload or nil when absent.
func (s *Store) ReadExistingScrapedData(ctx context.Context, matchID string, dataType scrape.DataType) (scrape.Object, error) {
	query := `SELECT payload FROM scraped_data WHERE match_id = $1 AND data_type = $2;`
	var raw []byte
	err := s.db.QueryRow(ctx, query, matchID, string(dataType)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read scraped data: %w", err)
	}
	obj, err := scrape.ObjectFromJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decode scraped data: %w", err)
	}
	return obj, nil
}

// LastScrapedAt returns when (matchID, dataType) was last stored.
func (s *Store) LastScrapedAt(ctx context.Context, matchID string, dataType scrape.DataType) (time.Time, error) {
	query := `SELECT scraped_at FROM scraped_data WHERE match_id = $1 AND data_type = $2;`
	var at time.Time
	err := s.db.QueryRow(ctx, query, matchID, string(dataType)).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read last scraped at: %w", err)
	}
	return at, nil
}

// LogOperation appends one operation-outcome record.
func (s *Store) LogOperation(ctx context.Context, op scrape.Operation) error {
	query := `
		INSERT INTO scrape_operations (match_id, data_type, status, error_message, duration_ms, retry_count, tokens_in, tokens_out, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	at := op.At
	if at.IsZero() {
		at = s.clock.Now()
	}
	_, err := s.db.Exec(ctx, query,
		op.MatchID,
		string(op.DataType),
		string(op.Status),
		op.ErrorMessage,
		op.Duration.Milliseconds(),
		op.RetryCount,
		op.TokensIn,
		op.TokensOut,
		at,
	)
	if err != nil {
		return fmt.Errorf("log operation: %w", err)
	}
	return nil
}
