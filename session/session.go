// Package session provides HTTP session management functionality with pluggable storage backends.
package session

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Session represents an HTTP session with associated data and configuration.
type Session struct {
	// Unique identifier for this session
	id string

	// used to determine the session duration
	createdAt time.Time

	// Session data as key-value pairs
	values map[string]any

	// Indicates if the session needs to be destroyed
	isDestroyed bool

	isModified bool

	// previous identifier, deleted from the store on the next save
	renewedFrom string
}

// newSession creates an empty session with a fresh identifier.
func newSession() *Session {
	return &Session{
		id:        genSessionID(),
		createdAt: time.Now(),
		values:    make(map[string]any),
	}
}

// Destroy removes the session
func (s *Session) Destroy() {
	s.Clear()
	s.isModified = true
	s.isDestroyed = true
}

// Renew gives the session a fresh identifier while keeping its values. The
// record under the old identifier is deleted when the session is saved.
// Call it whenever the privilege level changes, such as after logging in.
func (s *Session) Renew() {
	if s.renewedFrom == "" {
		s.renewedFrom = s.id
	}
	s.id = genSessionID()
	s.isModified = true
}

// Set adds or updates a value in the session and marks it as modified.
func (s *Session) Set(key string, value any) {
	s.isModified = true
	s.values[key] = value
}

func (s *Session) GetCreatedAt() time.Time {
	return s.createdAt
}

func (s *Session) GetID() string {
	return s.id
}

// Get retrieves a value from the session.
// Returns nil if the key doesn't exist.
func (s *Session) Get(key string) any {
	return s.values[key]
}

func (s *Session) GetInt(key string) int {
	v, _ := s.values[key].(int)
	return v
}

func (s *Session) GetBool(key string) bool {
	v, _ := s.values[key].(bool)
	return v
}

func (s *Session) GetString(key string) string {
	v, _ := s.values[key].(string)
	return v
}

// Keys returns the names of all values stored in the session, sorted.
func (s *Session) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsModified reports whether the session changed since it was loaded.
func (s *Session) IsModified() bool {
	return s.isModified
}

// Delete removes a value from the session.
func (s *Session) Delete(key string) {
	s.isModified = true
	delete(s.values, key)
}

// Clear removes all values from the session.
func (s *Session) Clear() {
	s.isModified = true
	s.values = make(map[string]any)
}

func genSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
