package ipernity

import (
	"net/http"
	"strings"
)

// Router is anything routes can be registered on; both *http.ServeMux and
// *ServeMux qualify.
type Router interface {
	Handle(pattern string, handler http.Handler)
}

// ServeMux is a wrapper around http.ServeMux that adds support for
// route grouping and applying middlewares.
//
//	mux := ipernity.NewServeMux()
//	mux.Use(logger.New(log))
//
//	albums := mux.Group("/albums", ip.RequirePermissions(api.Permissions{"doc": "read"}))
//	albums.HandleFunc("GET /{$}", listAlbums)
type ServeMux struct {
	*http.ServeMux
	middlewares []Middleware
}

// NewServeMux creates a new ServeMux instance.
func NewServeMux() *ServeMux {
	return &ServeMux{
		ServeMux: http.NewServeMux(),
	}
}

// Group creates a sub-router mounted at prefix; requests reach it with the
// prefix stripped and pass through middlewares first.
func (mux *ServeMux) Group(prefix string, middlewares ...Middleware) *ServeMux {
	sub := NewServeMux()
	mount(mux, prefix, Chain(sub, middlewares...))
	return sub
}

// Use adds a middleware applied to every route of this mux.
func (mux *ServeMux) Use(mw Middleware) {
	mux.middlewares = append(mux.middlewares, mw)
}

// ServeHTTP implements http.Handler and applies middlewares before
// dispatching to the underlying http.ServeMux.
func (mux *ServeMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	Chain(mux.ServeMux, mux.middlewares...).ServeHTTP(w, r)
}

func mount(r Router, prefix string, h http.Handler) {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		r.Handle("/", h)
		return
	}
	r.Handle(prefix+"/", http.StripPrefix(prefix, h))
}

// Register mounts the enabled routes on r:
//
//	GET {CallbackURLPrefix}/cb                    when Config.Callback
//	GET {LoginURLPrefix}/login, /logout           when Config.Login
//	GET {ProxyURLPrefix}/doc/{doc_id}/{label}     when Config.ProxyDocs
//
// Routes whose prefixes are equal share one sub-router.
func (ip *Ipernity) Register(r Router) {
	groups := make(map[string]*http.ServeMux)
	var order []string
	group := func(prefix string) *http.ServeMux {
		prefix = strings.TrimSuffix(prefix, "/")
		g, ok := groups[prefix]
		if !ok {
			g = http.NewServeMux()
			groups[prefix] = g
			order = append(order, prefix)
		}
		return g
	}

	if ip.cfg.Callback {
		group(ip.cfg.CallbackURLPrefix).Handle("GET /cb", ip.CallbackHandler())
	}
	if ip.cfg.Login {
		g := group(ip.cfg.LoginURLPrefix)
		g.Handle("GET /login", ip.LoginHandler())
		g.Handle("GET /logout", ip.LogoutHandler())
	}
	if ip.cfg.ProxyDocs {
		group(ip.cfg.ProxyURLPrefix).Handle("GET /doc/{doc_id}/{label}", ip.DocHandler())
	}

	for _, prefix := range order {
		ip.logger.Debugw("mounting routes", "prefix", prefix)
		mount(r, prefix, groups[prefix])
	}
}
