// Package logger provides an HTTP middleware that writes one structured
// entry per request to a zap logger.
//
// Usage:
//
//	l := logger.New(zapLogger.Sugar(), logger.WithLevel(zap.DebugLevel))
//	http.ListenAndServe(":8080", l.Handler(mux))
//
// Each entry carries the status, latency, client ip, method and path.
// Server errors are logged at error level regardless of the configured
// level.
package logger

import (
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// responseWriter wraps http.ResponseWriter to capture the response status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before delegating to the underlying ResponseWriter.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Logger is a middleware that captures request details and logs them.
type Logger struct {
	logger *zap.SugaredLogger
	level  zapcore.Level
	skip   map[string]bool
}

type config func(*Logger)

// WithLevel sets the level of successful requests. (default info)
func WithLevel(level zapcore.Level) config {
	return config(func(l *Logger) {
		l.level = level
	})
}

// WithSkipPaths disables logging for requests to the given paths.
func WithSkipPaths(paths ...string) config {
	return config(func(l *Logger) {
		for _, p := range paths {
			l.skip[p] = true
		}
	})
}

// Handler wraps an http.Handler and logs each request once it completes.
func (l *Logger) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.skip[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := &responseWriter{w, http.StatusOK}
		next.ServeHTTP(rw, r)

		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		level := l.level
		if rw.statusCode >= http.StatusInternalServerError {
			level = zapcore.ErrorLevel
		}
		l.logger.Logw(level, "request",
			"status", rw.statusCode,
			"latency", time.Since(start),
			"ip", ip,
			"method", r.Method,
			"path", r.URL.Path,
		)
	})
}

// New creates a Logger middleware writing to logger.
func New(logger *zap.SugaredLogger, cfgs ...config) *Logger {
	lgr := &Logger{
		logger: logger,
		level:  zapcore.InfoLevel,
		skip:   make(map[string]bool),
	}

	for _, cfg := range cfgs {
		cfg(lgr)
	}

	return lgr
}
