// Package mysqlstore provides a MySQL/MariaDB session storage implementation
// on top of database/sql and the go-sql-driver/mysql driver.
package mysqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
)

var validTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// MySQLStore is a MySQL backed storage for session data.
type MySQLStore struct {
	db     *sql.DB
	table  string
	logger *zap.SugaredLogger
}

type config func(*MySQLStore)

// WithTable sets the table name. (default "sessions")
func WithTable(table string) config {
	return config(func(s *MySQLStore) {
		s.table = table
	})
}

// WithLogger sets the logger used by the cleanup loop. (default no-op)
func WithLogger(logger *zap.SugaredLogger) config {
	return config(func(s *MySQLStore) {
		s.logger = logger
	})
}

// New creates a MySQLStore, creating its table and index when missing.
func New(ctx context.Context, db *sql.DB, cfgs ...config) (*MySQLStore, error) {
	s := &MySQLStore{db: db, table: "sessions", logger: zap.NewNop().Sugar()}
	for _, cfg := range cfgs {
		cfg(s)
	}
	if !validTable.MatchString(s.table) {
		return nil, fmt.Errorf("invalid table name %q", s.table)
	}
	return s, s.createTable(ctx)
}

// Get retrieves the data associated with the given token. Expired records
// are reported as not found.
func (s *MySQLStore) Get(ctx context.Context, token string) ([]byte, bool, error) {
	stmt := "SELECT data FROM " + s.table + " WHERE token = ? AND UTC_TIMESTAMP(6) < expires_at"

	var data []byte
	err := s.db.QueryRowContext(ctx, stmt, token).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set upserts the data under the given token until expiresAt.
func (s *MySQLStore) Set(ctx context.Context, token string, data []byte, expiresAt time.Time) error {
	stmt := "INSERT INTO " + s.table + "(token, data, expires_at) VALUES (?, ?, ?) " +
		"ON DUPLICATE KEY UPDATE data = VALUES(data), expires_at = VALUES(expires_at)"
	_, err := s.db.ExecContext(ctx, stmt, token, data, expiresAt.UTC())
	return err
}

// Delete removes the data associated with the given token.
func (s *MySQLStore) Delete(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM "+s.table+" WHERE token = ?", token)
	return err
}

// PeriodicCleanUp deletes expired sessions every interval until ctx is done.
func (s *MySQLStore) PeriodicCleanUp(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.deleteExpired(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *MySQLStore) deleteExpired(ctx context.Context) {
	_, err := s.db.ExecContext(ctx, "DELETE FROM "+s.table+" WHERE UTC_TIMESTAMP(6) > expires_at")
	if err != nil && ctx.Err() == nil {
		s.logger.Errorw("deleting expired sessions", "table", s.table, "error", err)
	}
}

func (s *MySQLStore) createTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
			token CHAR(36) COLLATE utf8mb4_bin PRIMARY KEY,
			data BLOB NOT NULL,
			expires_at TIMESTAMP(6) NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS `+s.table+`_expires_at_idx ON `+s.table+` (expires_at)`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}
