package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"flatwatch/internal/storage"
)

type Repository struct {
	db             *sql.DB
	table          string
	commandTimeout time.Duration
}

func NewRepository(dsn, table string, commandTimeout time.Duration) (*Repository, error) {
	if err := storage.ValidateTableName(table); err != nil {
		return nil, err
	}

	// parseTime нужен для сканирования DATETIME в time.Time
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connector: %w", err)
	}
	db := sql.OpenDB(connector)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}

	r := &Repository{db: db, table: table, commandTimeout: commandTimeout}
	if err := r.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
		"listing_id BIGINT NOT NULL PRIMARY KEY,"+
		"title VARCHAR(1000) NOT NULL,"+
		"link VARCHAR(2000) NOT NULL,"+
		"payload JSON NOT NULL,"+
		"checksum CHAR(64) NOT NULL,"+
		"notified_at DATETIME(3) NOT NULL"+
		") DEFAULT CHARSET=utf8mb4", r.table)

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (r *Repository) Exists(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM `%s` WHERE listing_id = ?", r.table)
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to query mysql: %w", err)
	}
	return count > 0, nil
}

func (r *Repository) Put(ctx context.Context, m *storage.Marker) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	payload, err := json.Marshal(m.Listing)
	if err != nil {
		return false, fmt.Errorf("failed to encode listing: %w", err)
	}

	query := fmt.Sprintf("INSERT IGNORE INTO `%s` "+
		"(listing_id, title, link, payload, checksum, notified_at) VALUES (?, ?, ?, ?, ?, ?)", r.table)

	result, err := r.db.ExecContext(ctx, query,
		m.Listing.ID, m.Listing.Title, m.Listing.Link, string(payload), m.CheckSum, m.NotifiedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert marker: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
