package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/loglens/internal/core"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS analysis_results (
	seq          BIGSERIAL PRIMARY KEY,
	id           UUID NOT NULL UNIQUE,
	source_name  TEXT NOT NULL,
	schema_label TEXT NOT NULL,
	status       TEXT NOT NULL,
	probability  DOUBLE PRECISION NOT NULL,
	observed_at  TIMESTAMPTZ NOT NULL,
	metrics      JSONB NOT NULL,
	origin       TEXT NOT NULL
)`

const selectColumns = `id, source_name, schema_label, status, probability, observed_at, metrics, origin`

// DB is the subset of *pgxpool.Pool used by Postgres.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores results in the analysis_results table. Rows are only
// ever inserted; List orders by the insertion sequence.
type Postgres struct {
	db     DB
	logger *slog.Logger
}

// PoolConfig tunes the connection pool opened by OpenPostgres.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// OpenPostgres connects a pool, verifies it and creates the results table.
// The caller closes the returned pool.
func OpenPostgres(ctx context.Context, cfg PoolConfig, logger *slog.Logger) (*Postgres, *pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	store, err := NewPostgres(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool, nil
}

// NewPostgres ensures the results table exists on db.
func NewPostgres(ctx context.Context, db DB, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("create analysis_results: %w", err)
	}
	return &Postgres{db: db, logger: logger}, nil
}

// Append inserts r.
func (p *Postgres) Append(ctx context.Context, r core.NormalizedResult) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("append result: %w", err)
	}

	metrics, err := json.Marshal(r.Metrics)
	if err != nil {
		return fmt.Errorf("append result: encode metrics: %w", err)
	}

	_, err = p.db.Exec(ctx,
		`INSERT INTO analysis_results (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.SourceName, string(r.Label), string(r.Status), r.Probability,
		r.ObservedAt.UTC(), metrics, string(r.Origin),
	)
	if err != nil {
		return fmt.Errorf("append result %s: %w", r.ID, err)
	}

	p.logger.Debug("result stored", "id", r.ID, "label", r.Label, "status", r.Status)
	return nil
}

// List returns every stored result, oldest first.
func (p *Postgres) List(ctx context.Context) ([]core.NormalizedResult, error) {
	rows, err := p.db.Query(ctx, `SELECT `+selectColumns+` FROM analysis_results ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	results := make([]core.NormalizedResult, 0)
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("list results: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return results, nil
}

// Get returns the result with the given ID.
func (p *Postgres) Get(ctx context.Context, id uuid.UUID) (core.NormalizedResult, error) {
	row := p.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM analysis_results WHERE id = $1`, id)
	r, err := scanResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.NormalizedResult{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.NormalizedResult{}, fmt.Errorf("get %s: %w", id, err)
	}
	return r, nil
}

func scanResult(row pgx.Row) (core.NormalizedResult, error) {
	var (
		r                     core.NormalizedResult
		label, status, origin string
		metrics               []byte
	)
	if err := row.Scan(&r.ID, &r.SourceName, &label, &status, &r.Probability, &r.ObservedAt, &metrics, &origin); err != nil {
		return core.NormalizedResult{}, err
	}
	if err := json.Unmarshal(metrics, &r.Metrics); err != nil {
		return core.NormalizedResult{}, fmt.Errorf("decode metrics: %w", err)
	}
	r.Label = core.SchemaLabel(label)
	r.Status = core.Status(status)
	r.Origin = core.Origin(origin)
	r.ObservedAt = r.ObservedAt.UTC()
	return r, nil
}
