// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kbforge/ingest/internal/store"
	"github.com/kbforge/ingest/internal/tracker"
)

// Config controls the Postgres connection pool for operation rows.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// OperationStore writes operation snapshots into the operations table.
type OperationStore struct {
	pool pgxPool
}

// NewOperationStore creates a Postgres-backed OperationStore using the
// provided config.
func NewOperationStore(ctx context.Context, cfg Config) (*OperationStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &OperationStore{pool: pool}, nil
}

// NewOperationStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewOperationStoreWithPool(pool pgxPool) (*OperationStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &OperationStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *OperationStore) Close() {
	s.pool.Close()
}

// Upsert inserts or replaces the snapshot for op.ProgressID.
func (s *OperationStore) Upsert(ctx context.Context, op tracker.Operation) error {
	query := `
		INSERT INTO operations (progress_id, source_key, kind, status, progress_percent, message, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (progress_id) DO UPDATE
		SET status = EXCLUDED.status,
		    progress_percent = EXCLUDED.progress_percent,
		    message = EXCLUDED.message,
		    updated_at = EXCLUDED.updated_at;
	`
	_, err := s.pool.Exec(ctx, query,
		op.ProgressID,
		op.SourceKey,
		string(op.Kind),
		string(op.Status),
		op.Percent,
		op.Message,
		op.StartedAt,
		op.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert operation: %w", err)
	}
	return nil
}

// Get loads one snapshot or returns store.ErrNotFound.
func (s *OperationStore) Get(ctx context.Context, progressID string) (tracker.Operation, error) {
	query := `
		SELECT progress_id, source_key, kind, status, progress_percent, message, started_at, updated_at
		FROM operations
		WHERE progress_id = $1;
	`
	var op tracker.Operation
	var kind, status string
	err := s.pool.QueryRow(ctx, query, progressID).Scan(
		&op.ProgressID,
		&op.SourceKey,
		&kind,
		&status,
		&op.Percent,
		&op.Message,
		&op.StartedAt,
		&op.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tracker.Operation{}, store.ErrNotFound
		}
		return tracker.Operation{}, fmt.Errorf("get operation: %w", err)
	}
	op.Kind = tracker.Kind(kind)
	op.Status = tracker.Status(status)
	return op, nil
}

// List returns snapshots ordered by start time descending.
func (s *OperationStore) List(ctx context.Context, limit, offset int) ([]tracker.Operation, error) {
	query := `
		SELECT progress_id, source_key, kind, status, progress_percent, message, started_at, updated_at
		FROM operations
		ORDER BY started_at DESC, progress_id DESC
		LIMIT $1 OFFSET $2;
	`
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	var out []tracker.Operation
	for rows.Next() {
		var op tracker.Operation
		var kind, status string
		if err := rows.Scan(
			&op.ProgressID,
			&op.SourceKey,
			&kind,
			&status,
			&op.Percent,
			&op.Message,
			&op.StartedAt,
			&op.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan operation row: %w", err)
		}
		op.Kind = tracker.Kind(kind)
		op.Status = tracker.Status(status)
		out = append(out, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operation rows: %w", err)
	}
	return out, nil
}
