package ipernity

import (
	"net/http"
	"strings"

	"github.com/bluescreen10/ipernity/session"
)

// Session keys, relative to Config.SessionPrefix.
const (
	keyToken            = "token"
	keyNextURL          = "next_url"
	keyCache            = "cache"
	keyAPICalls         = "api_calls"
	keyReturnsFromCache = "returns_from_cache"
	keyUserID           = "user_id"
)

// Values is the per-user session storage provided by the host application.
// *session.Session satisfies it; gorillasession adapts gorilla/sessions.
type Values interface {
	Get(key string) any
	Set(key string, value any)
	Delete(key string)
	Keys() []string
}

// renewer is implemented by sessions that can change their identifier, as
// *session.Session does. The identifier is renewed whenever a token is
// stored so that an identifier planted before login is worthless after it.
type renewer interface {
	Renew()
}

// SessionFunc returns the session of the request being served.
type SessionFunc func(r *http.Request) Values

// FromManager uses the sessions loaded by a session.Manager middleware.
func FromManager(m *session.Manager) SessionFunc {
	return func(r *http.Request) Values {
		return m.Get(r)
	}
}

// State is a namespaced view over a session: every key is prefixed before it
// reaches the underlying Values, so several components can share a session.
type State struct {
	values Values
	prefix string
}

// NewState returns a view of values whose keys are prefixed with prefix.
func NewState(values Values, prefix string) *State {
	return &State{values: values, prefix: prefix}
}

// Get returns the value stored under key, or def when absent.
func (s *State) Get(key string, def any) any {
	if v := s.values.Get(s.prefix + key); v != nil {
		return v
	}
	return def
}

// GetString returns the string stored under key, or def when absent or not
// a string.
func (s *State) GetString(key, def string) string {
	if v, ok := s.Get(key, nil).(string); ok {
		return v
	}
	return def
}

// GetInt returns the int stored under key, or def when absent or not an int.
func (s *State) GetInt(key string, def int) int {
	if v, ok := s.Get(key, nil).(int); ok {
		return v
	}
	return def
}

// Set stores value under key and marks the session modified.
func (s *State) Set(key string, value any) {
	s.values.Set(s.prefix+key, value)
}

// Pop removes key and returns its value, or def when absent.
func (s *State) Pop(key string, def any) any {
	v := s.Get(key, nil)
	if v == nil {
		return def
	}
	s.values.Delete(s.prefix + key)
	return v
}

// Incr adds one to the counter stored under key and returns the new value.
func (s *State) Incr(key string) int {
	n := s.GetInt(key, 0) + 1
	s.Set(key, n)
	return n
}

// Renew asks the underlying session for a fresh identifier, when it
// supports one.
func (s *State) Renew() {
	if r, ok := s.values.(renewer); ok {
		r.Renew()
	}
}

// Clear removes every key under the prefix.
func (s *State) Clear() {
	for _, k := range s.values.Keys() {
		if strings.HasPrefix(k, s.prefix) {
			s.values.Delete(k)
		}
	}
}
