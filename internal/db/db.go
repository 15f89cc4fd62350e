// Package db wraps the Postgres connection with the two execution modes the
// agent needs: plain queries and queries inside an explicit read-only
// transaction.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Config controls pool construction.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// QueryResult is the raw outcome of a driver call. Rows are materialized as
// maps so the result can cross the sink boundary as-is.
type QueryResult struct {
	Rows     []map[string]any
	RowCount int
	Duration time.Duration
	Columns  []string
}

// Querier is the database collaborator contract consumed by the schema
// engine and the executor.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (*QueryResult, error)
	ReadOnlyQuery(ctx context.Context, query string, args ...any) (*QueryResult, error)
}

// Client is the pgx-backed Querier used in production.
type Client struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection with a short ping.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	database, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		database.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		database.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		database.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		database.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := database.PingContext(pingCtx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Client{db: database}, nil
}

// NewClient wraps an existing *sql.DB. Used by tests with sqlmock.
func NewClient(database *sql.DB) *Client {
	return &Client{db: database}
}

// Close releases the underlying pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// Ping verifies connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// ServerInfo returns the connected database name and server version string.
func (c *Client) ServerInfo(ctx context.Context) (database, version string, err error) {
	row := c.db.QueryRowContext(ctx, "SELECT current_database(), version()")
	if err := row.Scan(&database, &version); err != nil {
		return "", "", fmt.Errorf("query server info: %w", err)
	}

	return database, version, nil
}

// Query runs a statement in ordinary mode and materializes the result.
func (c *Client) Query(ctx context.Context, query string, args ...any) (*QueryResult, error) {
	started := time.Now()

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result, err := collectRows(rows)
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(started)

	return result, nil
}

// ReadOnlyQuery runs a statement inside an explicit read-only transaction.
// The transaction is rolled back on any failure before the error surfaces;
// on success it is committed so the server releases the snapshot promptly.
func (c *Client) ReadOnlyQuery(ctx context.Context, query string, args ...any) (*QueryResult, error) {
	started := time.Now()

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read-only transaction: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	result, err := collectRows(rows)
	rows.Close()

	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit read-only transaction: %w", err)
	}

	result.Duration = time.Since(started)

	return result, nil
}

// collectRows materializes a *sql.Rows into column names and row maps.
func collectRows(rows *sql.Rows) (*QueryResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read result columns: %w", err)
	}

	result := &QueryResult{Columns: columns}

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			// Drivers return text columns as []byte; normalize for JSON.
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}

		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	result.RowCount = len(result.Rows)

	return result, nil
}
