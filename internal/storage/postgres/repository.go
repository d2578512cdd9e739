package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"flatwatch/internal/storage"
)

type Repository struct {
	pool           *pgxpool.Pool
	table          string
	commandTimeout time.Duration
}

func NewRepository(ctx context.Context, dsn, table string, commandTimeout time.Duration) (*Repository, error) {
	if err := storage.ValidateTableName(table); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	r := &Repository{pool: pool, table: table, commandTimeout: commandTimeout}
	if err := r.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	sql := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		listing_id  BIGINT PRIMARY KEY,
		title       TEXT NOT NULL,
		link        TEXT NOT NULL,
		payload     JSONB NOT NULL,
		checksum    CHAR(64) NOT NULL,
		notified_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`, r.table)

	if _, err := r.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (r *Repository) Exists(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE listing_id = $1)`, r.table)
	if err := r.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to query postgres: %w", err)
	}
	return exists, nil
}

func (r *Repository) Put(ctx context.Context, m *storage.Marker) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	payload, err := json.Marshal(m.Listing)
	if err != nil {
		return false, fmt.Errorf("failed to encode listing: %w", err)
	}

	insertSQL := fmt.Sprintf(`
	INSERT INTO %s (listing_id, title, link, payload, checksum, notified_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (listing_id) DO NOTHING;
	`, r.table)

	tag, err := r.pool.Exec(ctx, insertSQL,
		m.Listing.ID, m.Listing.Title, m.Listing.Link, payload, m.CheckSum, m.NotifiedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert marker: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}
