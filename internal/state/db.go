// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool. It stays nil when no history database is
// configured; every store function then returns ErrDBNotInitialized.
var DB *sql.DB

var ErrDBNotInitialized = errors.New("database not initialized")

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(ctx context.Context, cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	DB = db
	log.Info().
		Str("host", cfg.Host).
		Str("dbname", cfg.DBName).
		Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
		DB = nil
	}
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS vault_snapshots (
		snapshot_id SERIAL PRIMARY KEY,
		snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		account VARCHAR(42) NOT NULL,
		chain_id BIGINT NOT NULL,
		tvl NUMERIC(38, 18) NOT NULL,
		apy NUMERIC(10, 4) NOT NULL,
		price_per_share NUMERIC(38, 18) NOT NULL,
		total_supply NUMERIC(38, 18) NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_vault_snapshots_timestamp ON vault_snapshots(snapshot_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_vault_snapshots_chain ON vault_snapshots(chain_id, snapshot_timestamp DESC);

	CREATE TABLE IF NOT EXISTS action_receipts (
		receipt_id SERIAL PRIMARY KEY,
		receipt_uuid UUID NOT NULL UNIQUE,
		action_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		action_type VARCHAR(20) NOT NULL,
		account VARCHAR(42) NOT NULL,
		token VARCHAR(42),
		amount NUMERIC(38, 18) NOT NULL,
		stage VARCHAR(20) NOT NULL,
		success BOOLEAN NOT NULL,
		message TEXT,
		transaction_hashes TEXT[]
	);
	CREATE INDEX IF NOT EXISTS idx_action_receipts_timestamp ON action_receipts(action_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_action_receipts_account ON action_receipts(account);
	CREATE INDEX IF NOT EXISTS idx_action_receipts_action_type ON action_receipts(action_type);
`

const dropSQL = `
	DROP TABLE IF EXISTS vault_snapshots CASCADE;
	DROP TABLE IF EXISTS action_receipts CASCADE;
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema(ctx context.Context) error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	if _, err := DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured (vault_snapshots, action_receipts).")
	return nil
}

// ResetSchema drops every table and recreates the schema.
func ResetSchema(ctx context.Context) error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	log.Info().Msg("Attempting to drop all tables...")
	if _, err := DB.ExecContext(ctx, dropSQL); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	log.Info().Msg("Successfully dropped all tables")

	return EnsureSchema(ctx)
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection(ctx context.Context) error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
