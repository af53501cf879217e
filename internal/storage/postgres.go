package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// PostgreSQLStorage holds the connection pool.
type PostgreSQLStorage struct {
	db *sql.DB
}

// Ensure PostgreSQLStorage implements Storage (compile-time check).
var _ Storage = (*PostgreSQLStorage)(nil)

// NewPostgreSQLStorage creates a new PostgreSQLStorage instance and ensures schema exists.
func NewPostgreSQLStorage(dbHost string, dbUser string, dbPassword string, dbName string, dbPort int, dbSSLMode string) (*PostgreSQLStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		dbHost, dbUser, dbPassword, dbName, dbPort, dbSSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		logger.Error("Failed to open PostgreSQL connection", zap.Error(err))
		return nil, fmt.Errorf("storage: failed to open PostgreSQL database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		logger.Error("Failed to ping PostgreSQL database", zap.Error(err), zap.String("host", dbHost), zap.Int("port", dbPort), zap.String("dbname", dbName))
		return nil, fmt.Errorf("storage: failed to connect to PostgreSQL database: %w", err)
	}

	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer schemaCancel()
	if err := ensureSchema(schemaCtx, db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("PostgreSQLStorage initialized", zap.String("host", dbHost), zap.Int("port", dbPort), zap.String("dbname", dbName))
	return &PostgreSQLStorage{db: db}, nil
}

// ensureSchema creates the blob table if it doesn't exist.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS blobs (
			group_name TEXT NOT NULL,
			dir TEXT NOT NULL,
			name TEXT NOT NULL,
			kind INTEGER NOT NULL,
			value BYTEA NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			PRIMARY KEY (group_name, dir, name)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_blobs_group_dir ON blobs (group_name, dir);`,
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			logger.Error("Failed to execute schema statement", zap.Error(err), zap.Int("statement_index", i), zap.String("statement", stmt))
			return fmt.Errorf("storage: failed to initialize database schema: %w", err)
		}
	}
	return nil
}

func (s *PostgreSQLStorage) Load(ctx context.Context, group, dir, name string, kind Kind) ([]byte, error) {
	query := `SELECT value FROM blobs WHERE group_name = $1 AND dir = $2 AND name = $3`
	var value []byte
	err := s.db.QueryRowContext(ctx, query, group, dir, name).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		logger.Error("Failed to load blob", zap.Error(err), zap.String("group", group), zap.String("dir", dir), zap.String("name", name))
		return nil, fmt.Errorf("storage: failed to load blob %s/%s/%s: %w", group, dir, name, err)
	}
	return value, nil
}

func (s *PostgreSQLStorage) Save(ctx context.Context, group, dir, name string, kind Kind, value []byte) error {
	query := `
		INSERT INTO blobs (group_name, dir, name, kind, value, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (group_name, dir, name)
		DO UPDATE SET kind = EXCLUDED.kind, value = EXCLUDED.value, updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, query, group, dir, name, int(kind), value); err != nil {
		logger.Error("Failed to save blob", zap.Error(err), zap.String("group", group), zap.String("dir", dir), zap.String("name", name))
		return fmt.Errorf("storage: failed to save blob %s/%s/%s: %w", group, dir, name, err)
	}
	logger.Debug("Saved blob", zap.String("group", group), zap.String("dir", dir), zap.String("name", name), zap.String("kind", kind.String()), zap.Int("bytes", len(value)))
	return nil
}

func (s *PostgreSQLStorage) Close() error {
	return s.db.Close()
}
