// Package memstore provides an in-memory session storage implementation.
//
// Memstore stores session data keyed by a string token. Each record has an
// expiration time, and the store supports periodic cleanup of expired
// sessions. It is suitable for single-process deployments and tests; it is
// not persistent and does not share state across processes.
package memstore

import (
	"context"
	"sync"
	"time"
)

// Memstore is an in-memory storage for session data.
// It is safe for concurrent use by multiple goroutines.
type Memstore struct {
	sessions sync.Map
}

type record struct {
	expiresAt time.Time
	data      []byte
}

// New creates and returns a new Memstore instance.
func New() *Memstore {
	return &Memstore{}
}

// Get retrieves the data associated with the given token. Expired records
// are deleted on access and reported as not found.
func (m *Memstore) Get(ctx context.Context, token string) ([]byte, bool, error) {
	r, ok := m.sessions.Load(token)
	if !ok {
		return nil, false, nil
	}

	rec := r.(record)
	if time.Now().After(rec.expiresAt) {
		m.sessions.Delete(token)
		return nil, false, nil
	}

	return rec.data, true, nil
}

// Set stores the data under the given token until expiresAt, overwriting any
// existing record.
func (m *Memstore) Set(ctx context.Context, token string, data []byte, expiresAt time.Time) error {
	m.sessions.Store(token, record{expiresAt: expiresAt, data: data})
	return nil
}

// Delete removes the data associated with the given token.
func (m *Memstore) Delete(ctx context.Context, token string) error {
	m.sessions.Delete(token)
	return nil
}

// Count returns the number of records held, expired or not.
func (m *Memstore) Count() int {
	var n int
	m.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// PeriodicCleanUp deletes expired sessions every interval until ctx is done.
//
//	ctx, cancel := context.WithCancel(context.Background())
//	go store.PeriodicCleanUp(ctx, time.Minute)
//	...
//	cancel()
func (m *Memstore) PeriodicCleanUp(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.deleteExpired()
		case <-ctx.Done():
			return
		}
	}
}

func (m *Memstore) deleteExpired() {
	now := time.Now()
	m.sessions.Range(func(key, value any) bool {
		if now.After(value.(record).expiresAt) {
			m.sessions.Delete(key)
		}
		return true
	})
}
