// Package session provides a middleware-based session management system
// for net/http servers. It supports cookie-based sessions, idle timeouts,
// configurable persistence, and pluggable serialization codecs. It is the
// host session layer the ipernity extension keeps its state in.
//
// Usage:
//
//	store := memstore.New()
//	mgr := session.NewManager(store,
//	    session.WithName("my_session"),
//	    session.WithLifetime(2*time.Hour),
//	)
//
//	mux := http.NewServeMux()
//	mux.Handle("/", mgr.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	    sess := mgr.Get(r)
//	    count := sess.GetInt("count")
//	    count++
//	    sess.Set("count", count)
//	    fmt.Fprintf(w, "You have visited %d times\n", count)
//	})))
//
//	http.ListenAndServe(":8080", mux)
package session

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// responseWriter wraps http.ResponseWriter to intercept writes
// and ensure the session is saved before any headers or body are written.
type responseWriter struct {
	http.ResponseWriter
	mngr      *Manager
	req       *http.Request
	sess      *Session
	isWritten bool
}

// Write saves the session before writing the response body if it hasn't
// already been saved.
func (w *responseWriter) Write(b []byte) (int, error) {
	w.flush()
	return w.ResponseWriter.Write(b)
}

// WriteHeader saves the session before writing the response headers
// if it hasn't already been saved.
func (w *responseWriter) WriteHeader(statusCode int) {
	w.flush()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriter) flush() {
	if w.isWritten {
		return
	}
	w.isWritten = true
	if err := w.mngr.save(w.req.Context(), w.ResponseWriter, w.sess); err != nil {
		w.mngr.logger.Errorw("saving session", "session", w.sess.id, "error", err)
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

type contextKey struct{}

// Manager manages HTTP sessions using a Store backend and session options.
type Manager struct {
	store             Store
	lifetime          time.Duration
	idleTimeout       time.Duration
	codec             Codec
	logger            *zap.SugaredLogger
	cookieName        string
	cookiePath        string
	cookieDomain      string
	cookieSecure      bool
	cookieHttpOnly    bool
	cookiePartitioned bool
	cookieSameSite    http.SameSite
	cookiePersisted   bool
}

type config func(*Manager)

// WithLifetime sets the lifetime of the session. (default 24hr.)
func WithLifetime(lifetime time.Duration) config {
	return config(func(m *Manager) {
		m.lifetime = lifetime
	})
}

// WithIdleTimeout sets the idle timeout for the session. (default no timeout.)
func WithIdleTimeout(timeout time.Duration) config {
	return config(func(m *Manager) {
		m.idleTimeout = timeout
	})
}

// WithCodec replaces the gob codec used to serialize session values.
func WithCodec(codec Codec) config {
	return config(func(m *Manager) {
		m.codec = codec
	})
}

// WithLogger sets the logger used to report storage failures. (default no-op)
func WithLogger(logger *zap.SugaredLogger) config {
	return config(func(m *Manager) {
		m.logger = logger
	})
}

// WithName sets the cookie name for the session. (default "session_id".)
func WithName(name string) config {
	return config(func(m *Manager) {
		m.cookieName = name
	})
}

// WithPath sets the cookie path. (default "/".)
func WithPath(path string) config {
	return config(func(m *Manager) {
		m.cookiePath = path
	})
}

// WithDomain sets the cookie domain. (default "".)
func WithDomain(domain string) config {
	return config(func(m *Manager) {
		m.cookieDomain = domain
	})
}

// WithSecure sets the Secure flag on the cookie. (default false)
func WithSecure(secure bool) config {
	return config(func(m *Manager) {
		m.cookieSecure = secure
	})
}

// WithHttpOnly sets the HttpOnly flag on the cookie. (default true)
func WithHttpOnly(httpOnly bool) config {
	return config(func(m *Manager) {
		m.cookieHttpOnly = httpOnly
	})
}

// WithPartitioned sets the Partitioned flag on the cookie. (default false)
func WithPartitioned(partitioned bool) config {
	return config(func(m *Manager) {
		m.cookiePartitioned = partitioned
	})
}

// WithSameSite sets the SameSite policy for the cookie. (default Lax)
func WithSameSite(sameSite http.SameSite) config {
	return config(func(m *Manager) {
		m.cookieSameSite = sameSite
	})
}

// WithPersisted sets whether the cookie is persisted. (default true)
func WithPersisted(persisted bool) config {
	return config(func(m *Manager) {
		m.cookiePersisted = persisted
	})
}

// Handler wraps an http.Handler and provides load-and-save session functionality.
// It ensures that the session is loaded from the store and saved after the request.
func (m *Manager) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Cookie")

		var token string
		cookie, err := r.Cookie(m.cookieName)
		if err == nil {
			token = cookie.Value
		}
		sess, err := m.load(r.Context(), token)
		if err != nil {
			m.logger.Errorw("loading session", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		sr := r.WithContext(context.WithValue(r.Context(), contextKey{}, sess))
		sw := &responseWriter{ResponseWriter: w, mngr: m, req: sr, sess: sess}
		next.ServeHTTP(sw, sr)
		sw.flush()
	})
}

// Get retrieves the current session from the request context. It always
// returns a valid session object, never nil.
func (m *Manager) Get(r *http.Request) *Session {
	sess, ok := r.Context().Value(contextKey{}).(*Session)
	if !ok {
		return newSession()
	}
	return sess
}

// load retrieves a session from the store by token. If the token is empty
// or the session is not found, a new session is created.
func (m *Manager) load(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return newSession(), nil
	}

	data, found, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}

	if !found {
		return newSession(), nil
	}

	createdAt, values, err := m.codec.Decode(data)
	if err != nil {
		return nil, err
	}

	return &Session{id: token, createdAt: createdAt, values: values}, nil
}

// save persists the session to the store and updates the HTTP cookie.
// Destroyed sessions are deleted from the store and expired cookies are set.
// A renewed session's old record is deleted before the new one is written.
func (m *Manager) save(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess.renewedFrom != "" {
		if err := m.store.Delete(ctx, sess.renewedFrom); err != nil {
			return err
		}
		m.logger.Debugw("session renewed", "from", sess.renewedFrom, "to", sess.id)
		sess.renewedFrom = ""
	}

	if sess.isDestroyed {
		if err := m.store.Delete(ctx, sess.id); err != nil {
			return err
		}
		m.writeCookie(w, sess.id, time.Time{})
		return nil
	}

	expiresAt := sess.createdAt.Add(m.lifetime)

	if sess.isModified {
		data, err := m.codec.Encode(sess.createdAt, sess.values)
		if err != nil {
			return err
		}
		if err := m.store.Set(ctx, sess.id, data, expiresAt); err != nil {
			return err
		}
		sess.isModified = false
	}

	if m.idleTimeout > 0 {
		idleExpires := time.Now().Add(m.idleTimeout)
		if idleExpires.Before(expiresAt) {
			expiresAt = idleExpires
		}
	}
	m.writeCookie(w, sess.id, expiresAt)
	return nil
}

// writeCookie sets or expires the session cookie on the HTTP response.
func (m *Manager) writeCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	cookie := &http.Cookie{
		Value:       token,
		Name:        m.cookieName,
		Domain:      m.cookieDomain,
		HttpOnly:    m.cookieHttpOnly,
		Path:        m.cookiePath,
		SameSite:    m.cookieSameSite,
		Secure:      m.cookieSecure,
		Partitioned: m.cookiePartitioned,
	}

	if expiresAt.IsZero() {
		cookie.Expires = time.Unix(1, 0)
		cookie.MaxAge = -1
	} else if m.cookiePersisted {
		cookie.Expires = time.Unix(expiresAt.Unix()+1, 0)
		cookie.MaxAge = int(time.Until(expiresAt).Seconds() + 1)
	}

	http.SetCookie(w, cookie)
}

// NewManager creates a new session Manager with a Store and optional configuration.
func NewManager(store Store, cfgs ...config) *Manager {
	mngr := &Manager{
		lifetime:        24 * time.Hour,
		codec:           GobCodec{},
		logger:          zap.NewNop().Sugar(),
		cookieName:      "session_id",
		cookiePath:      "/",
		cookieHttpOnly:  true,
		cookieSameSite:  http.SameSiteLaxMode,
		cookiePersisted: true,
		store:           store,
	}

	for _, cfg := range cfgs {
		cfg(mngr)
	}

	return mngr
}
