package mssql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"flatwatch/internal/observability"
	"flatwatch/internal/storage"
)

type Repository struct {
	db             *sql.DB
	table          string
	commandTimeout time.Duration
	logger         *observability.Logger
}

func NewRepository(dsn, table string, commandTimeout time.Duration, logger *observability.Logger) (*Repository, error) {
	if err := storage.ValidateTableName(table); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewNop()
	}

	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Тестируем соединение
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	r := &Repository{
		db:             db,
		table:          table,
		commandTimeout: commandTimeout,
		logger:         logger,
	}
	if err := r.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// EnsureSchema создаёт таблицу отметок, если её нет
func (r *Repository) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		IF OBJECT_ID(N'dbo.%[1]s', N'U') IS NULL
		CREATE TABLE dbo.%[1]s (
			[ListingID]  BIGINT         NOT NULL PRIMARY KEY,
			[Title]      NVARCHAR(1000) NOT NULL,
			[Link]       NVARCHAR(2000) NOT NULL,
			[Payload]    NVARCHAR(MAX)  NOT NULL,
			[CheckSum]   CHAR(64)       NOT NULL,
			[NotifiedAt] DATETIME2      NOT NULL
		);`, r.table)

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Exists проверяет наличие отметки по идентификатору
func (r *Repository) Exists(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT COUNT(*) FROM dbo.%s WHERE [ListingID] = @ListingID`, r.table)

	var count int
	err := r.db.QueryRowContext(ctx, query, sql.Named("ListingID", id)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query database: %w", err)
	}

	return count > 0, nil
}

// Put вставляет отметку, существующую строку не трогает
func (r *Repository) Put(ctx context.Context, m *storage.Marker) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.commandTimeout)
	defer cancel()

	payload, err := json.Marshal(m.Listing)
	if err != nil {
		return false, fmt.Errorf("failed to encode listing: %w", err)
	}

	// MERGE statement для MS SQL
	query := fmt.Sprintf(`
		MERGE INTO dbo.%s WITH (HOLDLOCK) AS target
		USING (SELECT @ListingID AS ListingID) AS source
		ON target.[ListingID] = source.ListingID
		WHEN NOT MATCHED THEN
			INSERT ([ListingID], [Title], [Link], [Payload], [CheckSum], [NotifiedAt])
			VALUES (@ListingID, @Title, @Link, @Payload, @CheckSum, @NotifiedAt);
	`, r.table)

	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return false, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			r.logger.Error("Failed to close statement", "error", err.Error())
		}
	}()

	result, err := stmt.ExecContext(ctx,
		sql.Named("ListingID", m.Listing.ID),
		sql.Named("Title", m.Listing.Title),
		sql.Named("Link", m.Listing.Link),
		sql.Named("Payload", string(payload)),
		sql.Named("CheckSum", m.CheckSum),
		sql.Named("NotifiedAt", m.NotifiedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to execute insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Close закрывает соединение с БД
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
