// Package postgres implements the relational stores on PostgreSQL via
// pgx. It owns the schema (Migrate) and maps database failures onto the
// service error taxonomy: missing rows become NotFound, unique violations
// become Conflict, everything else is treated as transient.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/faults"
)

// Config holds the connection settings.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	// MaxConns bounds the pool. Zero means pgx defaults.
	MaxConns int32
	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration
}

// DSN renders the pgx connection string.
func (c Config) DSN() string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, host, port, c.Database)
}

// Store bundles the pool shared by all relational adapters.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Connect opens the pool and verifies connectivity.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return &Store{pool: pool, logger: logger.Named("postgres")}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS resource_types (
	id      UUID PRIMARY KEY,
	name    TEXT NOT NULL,
	tooltip TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id              UUID PRIMARY KEY,
	name            TEXT NOT NULL,
	is_active       BOOLEAN NOT NULL DEFAULT TRUE,
	organisation_id TEXT,
	user_id         TEXT,
	CHECK (organisation_id IS NULL OR user_id IS NULL)
);

CREATE TABLE IF NOT EXISTS subscription_resource_types (
	subscription_id  UUID NOT NULL REFERENCES subscriptions(id) ON DELETE CASCADE,
	resource_type_id UUID NOT NULL REFERENCES resource_types(id),
	PRIMARY KEY (subscription_id, resource_type_id)
);

CREATE TABLE IF NOT EXISTS collections (
	id              UUID PRIMARY KEY,
	subscription_id UUID NOT NULL REFERENCES subscriptions(id) ON DELETE CASCADE,
	name            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	UNIQUE (subscription_id, name)
);

CREATE TABLE IF NOT EXISTS collection_resource_types (
	collection_id    UUID NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
	resource_type_id UUID NOT NULL REFERENCES resource_types(id),
	PRIMARY KEY (collection_id, resource_type_id)
);

CREATE TABLE IF NOT EXISTS resources (
	id               UUID PRIMARY KEY,
	collection_id    UUID NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
	resource_type_id UUID NOT NULL REFERENCES resource_types(id),
	name             TEXT NOT NULL DEFAULT '',
	file_name        TEXT NOT NULL,
	file_type        TEXT NOT NULL DEFAULT '',
	file             BYTEA,
	metadata_file    BYTEA,
	markdown_content TEXT NOT NULL DEFAULT '',
	callback_urls    TEXT[] NOT NULL DEFAULT '{}',
	status           TEXT NOT NULL,
	error            TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS resources_collection_idx ON resources (collection_id);

CREATE TABLE IF NOT EXISTS search_requests (
	id             UUID PRIMARY KEY,
	collection_id  UUID NOT NULL,
	query          TEXT NOT NULL,
	resource_ids   TEXT[] NOT NULL DEFAULT '{}',
	filters        JSONB NOT NULL DEFAULT '{}',
	callback_urls  TEXT[] NOT NULL DEFAULT '{}',
	max_results    INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL,
	deadline       TIMESTAMPTZ,
	status         TEXT NOT NULL,
	embedding      REAL[],
	prompt         TEXT NOT NULL DEFAULT '',
	response       TEXT NOT NULL DEFAULT '',
	credential_url TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS search_results (
	id         UUID PRIMARY KEY,
	search_id  UUID NOT NULL REFERENCES search_requests(id) ON DELETE CASCADE,
	chunk_id   UUID NOT NULL,
	content    TEXT NOT NULL,
	score      DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS search_results_search_idx ON search_results (search_id);
`

// Migrate creates the schema. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	s.logger.Info("schema migrated")
	return nil
}

// errNoRows lets update paths reuse the NotFound mapping when no row was
// touched.
func errNoRows() error { return pgx.ErrNoRows }

// wrapErr maps a database error onto the service taxonomy.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return faults.NotFound(op, "not found")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return faults.Conflict(op, "already exists")
	}
	return faults.Transient(op, err)
}
