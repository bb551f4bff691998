// Package postgres stores work records as jsonb rows keyed by id.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/fandom-data/internal/store"
	"github.com/JakeFAU/fandom-data/internal/work"
)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "works"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

var _ store.Store = (*Store)(nil)

// Store is a store.Store backed by one Postgres table.
type Store struct {
	pool  pool
	table string
}

// New connects, pings, and creates the table when missing.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := s.init(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: p, table: table}, nil
}

func (s *Store) init(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id         text PRIMARY KEY,
	doc        jsonb NOT NULL,
	indexed_at timestamptz NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Upsert writes the batch in one statement. Later duplicates of an id within
// the batch win, matching the order the records were read.
func (s *Store) Upsert(ctx context.Context, records []work.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := store.CheckIDs(records); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	ids, docs, err := columns(records)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, doc)
SELECT id, doc::jsonb FROM unnest($1::text[], $2::text[]) AS t(id, doc)
ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, indexed_at = now()`, s.table)
	if _, err := s.pool.Exec(ctx, query, ids, docs); err != nil {
		return fmt.Errorf("upsert works: %w", err)
	}
	return nil
}

// FindByID returns the stored document for id.
func (s *Store) FindByID(ctx context.Context, id string) (work.Record, error) {
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE id = $1`, s.table)
	var doc []byte
	if err := s.pool.QueryRow(ctx, query, id).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return work.Record{}, fmt.Errorf("find by id %s: %w", id, store.ErrNotFound)
		}
		return work.Record{}, fmt.Errorf("find by id %s: %w", id, err)
	}
	rec, err := work.ParseRecord(doc)
	if err != nil {
		return work.Record{}, fmt.Errorf("find by id %s: %w", id, err)
	}
	return rec, nil
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (uint64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return uint64(n), nil
}

// columns flattens records into parallel id and JSON arrays, keeping only
// the last record for any repeated id.
func columns(records []work.Record) ([]string, []string, error) {
	pos := make(map[string]int, len(records))
	ids := make([]string, 0, len(records))
	docs := make([]string, 0, len(records))
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal %s: %w", rec.ID, err)
		}
		if i, ok := pos[rec.ID]; ok {
			docs[i] = string(payload)
			continue
		}
		pos[rec.ID] = len(ids)
		ids = append(ids, rec.ID)
		docs = append(docs, string(payload))
	}
	return ids, docs, nil
}
