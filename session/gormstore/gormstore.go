// Package gormstore provides a gorm session storage implementation.
//
// Sessions are kept in a single table (default "sessions") holding the
// token, the encoded data and an indexed expiry timestamp.
package gormstore

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GORMStore is a gorm backed storage for session data.
type GORMStore struct {
	db     *gorm.DB
	table  string
	logger *zap.SugaredLogger
}

type record struct {
	Token     string `gorm:"primaryKey;size:64"`
	Data      []byte
	ExpiresAt time.Time `gorm:"index"`
}

type config func(*GORMStore)

// WithTable sets the table name. (default "sessions")
func WithTable(table string) config {
	return config(func(s *GORMStore) {
		s.table = table
	})
}

// WithLogger sets the logger used by the cleanup loop. (default no-op)
func WithLogger(logger *zap.SugaredLogger) config {
	return config(func(s *GORMStore) {
		s.logger = logger
	})
}

// New creates a GORMStore and migrates its table.
func New(db *gorm.DB, cfgs ...config) (*GORMStore, error) {
	s := &GORMStore{db: db, table: "sessions", logger: zap.NewNop().Sugar()}
	for _, cfg := range cfgs {
		cfg(s)
	}
	return s, s.tx(context.Background()).AutoMigrate(&record{})
}

func (s *GORMStore) tx(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

// Get retrieves the data associated with the given token. Expired records
// are reported as not found.
func (s *GORMStore) Get(ctx context.Context, token string) ([]byte, bool, error) {
	var rec record
	tx := s.tx(ctx).Where("token = ? AND expires_at >= ?", token, time.Now()).Limit(1).Find(&rec)
	if tx.Error != nil || tx.RowsAffected == 0 {
		return nil, false, tx.Error
	}

	return rec.Data, true, nil
}

// Set upserts the data under the given token until expiresAt.
func (s *GORMStore) Set(ctx context.Context, token string, data []byte, expiresAt time.Time) error {
	rec := record{Token: token, Data: data, ExpiresAt: expiresAt}
	return s.tx(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "expires_at"}),
	}).Create(&rec).Error
}

// Delete removes the data associated with the given token.
func (s *GORMStore) Delete(ctx context.Context, token string) error {
	return s.tx(ctx).Where("token = ?", token).Delete(&record{}).Error
}

// PeriodicCleanUp deletes expired sessions every interval until ctx is done.
func (s *GORMStore) PeriodicCleanUp(ctx context.Context, interval time.Duration) {
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

func (s *GORMStore) deleteExpired(ctx context.Context) {
	tx := s.tx(ctx).Where("expires_at < ?", time.Now()).Delete(&record{})
	if tx.Error != nil {
		s.logger.Errorw("deleting expired sessions", "table", s.table, "error", tx.Error)
	}
}
