package ipernity

import "net/http"

// Middleware defines the interface for HTTP middleware compatible with
// ServeMux. *session.Manager, *logger.Logger and the gorillasession
// middleware all satisfy it.
type Middleware interface {
	Handler(http.Handler) http.Handler
}

// MiddlewareFunc adapts a plain wrapping function to Middleware.
type MiddlewareFunc func(http.Handler) http.Handler

// Handler calls f(next).
func (f MiddlewareFunc) Handler(next http.Handler) http.Handler {
	return f(next)
}

// Chain applies middlewares so that the first one is the outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i].Handler(h)
	}
	return h
}
