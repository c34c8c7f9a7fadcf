// Package gorillasession keeps ipernity state in gorilla/sessions sessions,
// for applications that already use them instead of session.Manager.
//
//	store := sessions.NewCookieStore([]byte(secret))
//	gs := gorillasession.New(store, "app")
//	ip, err := ipernity.New(cfg, gs.Sessions())
//	...
//	http.ListenAndServe(":8080", gs.Handler(mux))
//
// Cookie stores are limited to about 4KB per session, which the request
// cache fills quickly; prefer a server side store when CacheRequests is on.
package gorillasession

import (
	"context"
	"net/http"
	"sort"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/bluescreen10/ipernity"
)

// Values adapts a gorilla session to ipernity.Values. Only string keys are
// visible.
type Values struct {
	sess     *sessions.Session
	modified bool
}

// Wrap returns sess as ipernity.Values.
func Wrap(sess *sessions.Session) *Values {
	return &Values{sess: sess}
}

func (v *Values) Get(key string) any {
	return v.sess.Values[key]
}

func (v *Values) Set(key string, value any) {
	v.modified = true
	v.sess.Values[key] = value
}

func (v *Values) Delete(key string) {
	if _, ok := v.sess.Values[key]; ok {
		v.modified = true
		delete(v.sess.Values, key)
	}
}

func (v *Values) Keys() []string {
	keys := make([]string, 0, len(v.sess.Values))
	for k := range v.sess.Values {
		if s, ok := k.(string); ok {
			keys = append(keys, s)
		}
	}
	sort.Strings(keys)
	return keys
}

// IsModified reports whether Set or Delete changed the session.
func (v *Values) IsModified() bool {
	return v.modified
}

// responseWriter saves a modified session before the headers go out.
type responseWriter struct {
	http.ResponseWriter
	mw      *Middleware
	req     *http.Request
	values  *Values
	flushed bool
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.flush()
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.flush()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *responseWriter) flush() {
	if w.flushed {
		return
	}
	w.flushed = true
	if !w.values.modified {
		return
	}
	if err := w.values.sess.Save(w.req, w.ResponseWriter); err != nil {
		w.mw.logger.Errorw("saving session", "name", w.mw.name, "error", err)
	}
}

type contextKey struct{}

// Middleware loads the named gorilla session for each request and saves it
// when ipernity modified it.
type Middleware struct {
	store  sessions.Store
	name   string
	logger *zap.SugaredLogger
}

type config func(*Middleware)

// WithLogger sets the logger. (default no-op)
func WithLogger(logger *zap.SugaredLogger) config {
	return config(func(m *Middleware) {
		m.logger = logger
	})
}

// New creates a Middleware for the session called name in store.
func New(store sessions.Store, name string, cfgs ...config) *Middleware {
	m := &Middleware{
		store:  store,
		name:   name,
		logger: zap.NewNop().Sugar(),
	}
	for _, cfg := range cfgs {
		cfg(m)
	}
	return m
}

// Handler loads the session before calling next. A session that cannot be
// decoded is replaced by a new one.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := m.store.Get(r, m.name)
		if err != nil {
			m.logger.Warnw("discarding unreadable session", "name", m.name, "error", err)
		}
		if sess == nil {
			sess = sessions.NewSession(m.store, m.name)
		}

		values := Wrap(sess)
		sr := r.WithContext(context.WithValue(r.Context(), contextKey{}, values))
		sw := &responseWriter{ResponseWriter: w, mw: m, req: sr, values: values}
		next.ServeHTTP(sw, sr)
		sw.flush()
	})
}

// Get returns the session loaded by Handler. Outside Handler it returns a
// throwaway session that is never saved.
func (m *Middleware) Get(r *http.Request) *Values {
	if v, ok := r.Context().Value(contextKey{}).(*Values); ok {
		return v
	}
	return Wrap(sessions.NewSession(m.store, m.name))
}

// Sessions returns the session source for ipernity.New.
func (m *Middleware) Sessions() ipernity.SessionFunc {
	return func(r *http.Request) ipernity.Values {
		return m.Get(r)
	}
}
