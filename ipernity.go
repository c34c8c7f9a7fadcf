// Package ipernity integrates the Ipernity web API into net/http
// applications.
//
// It provides the web authentication handshake (Authorize, the callback
// route and Logout), a per-session cache of API replies, a guard middleware
// that sends users through authorization when their token lacks the
// permissions a handler needs, optional login integration and a proxy for
// document media.
//
// State lives in the host application's session, reached through a
// SessionFunc, under keys prefixed with Config.SessionPrefix:
//
//	mgr := session.NewManager(memstore.New())
//	ip, err := ipernity.New(cfg, ipernity.FromManager(mgr))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	mux := ipernity.NewServeMux()
//	ip.Register(mux)
//	mux.Handle("GET /albums", ip.RequirePermissions(api.Permissions{"doc": "read"}).Handler(albums))
//
//	http.ListenAndServe(":8080", mgr.Handler(mux))
package ipernity

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/bluescreen10/ipernity/api"
)

// ErrorHandler reports a failed request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Ipernity is the extension. One instance serves the whole application and
// is safe for concurrent use; per-request state is reached through API.
type Ipernity struct {
	cfg        Config
	sessions   SessionFunc
	client     *api.Client
	httpClient *http.Client
	logger     *zap.SugaredLogger
	now        func() time.Time
	reg        prometheus.Registerer
	metrics    *metrics
	onError    ErrorHandler
}

// Option configures an Ipernity.
type Option func(*Ipernity)

// WithLogger sets the logger. (default no-op)
func WithLogger(logger *zap.SugaredLogger) Option {
	return Option(func(ip *Ipernity) {
		ip.logger = logger
	})
}

// WithClock sets the time source used for cache expiry. (default time.Now)
func WithClock(now func() time.Time) Option {
	return Option(func(ip *Ipernity) {
		ip.now = now
	})
}

// WithHTTPClient sets the HTTP client used for API calls and media
// downloads. (default a cleanhttp pooled client)
func WithHTTPClient(hc *http.Client) Option {
	return Option(func(ip *Ipernity) {
		ip.httpClient = hc
	})
}

// WithRegisterer registers the extension's prometheus counters.
// (default not registered)
func WithRegisterer(reg prometheus.Registerer) Option {
	return Option(func(ip *Ipernity) {
		ip.reg = reg
	})
}

// WithErrorHandler sets how route handlers report errors.
// (default DefaultErrorHandler)
func WithErrorHandler(h ErrorHandler) Option {
	return Option(func(ip *Ipernity) {
		ip.onError = h
	})
}

// New creates the extension from cfg. sessions gives access to the host
// session of each request.
func New(cfg Config, sessions SessionFunc, opts ...Option) (*Ipernity, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sessions == nil {
		return nil, errors.New("ipernity: a session source is required")
	}

	ip := &Ipernity{
		cfg:      cfg,
		sessions: sessions,
		logger:   zap.NewNop().Sugar(),
		now:      time.Now,
		onError:  DefaultErrorHandler,
	}
	for _, opt := range opts {
		opt(ip)
	}

	clientCfgs := []api.Option{api.WithLogger(ip.logger.Named("api"))}
	if cfg.APIURL != "" {
		clientCfgs = append(clientCfgs, api.WithAPIURL(cfg.APIURL))
	}
	if cfg.AuthURL != "" {
		clientCfgs = append(clientCfgs, api.WithAuthURL(cfg.AuthURL))
	}
	if ip.httpClient != nil {
		clientCfgs = append(clientCfgs, api.WithHTTPClient(ip.httpClient))
	}
	ip.client = api.New(cfg.AppKey, cfg.AppSecret, clientCfgs...)

	if ip.reg != nil {
		ip.metrics = newMetrics(ip.reg)
	}

	ip.logger.Debugw("initialized",
		"cache", cfg.CacheRequests,
		"callback", cfg.Callback,
		"login", cfg.Login,
		"proxy", cfg.ProxyDocs,
	)
	return ip, nil
}

// Config returns the settings the extension was created with.
func (ip *Ipernity) Config() Config {
	return ip.cfg
}

// Client returns the application-level, anonymous API client.
func (ip *Ipernity) Client() *api.Client {
	return ip.client
}

// State returns the extension's namespaced view of the request's session.
func (ip *Ipernity) State(r *http.Request) *State {
	return NewState(ip.sessions(r), ip.cfg.SessionPrefix)
}

// API returns the API access of the user making the request: a client bound
// to the session's token, wrapped in the session cache when enabled.
func (ip *Ipernity) API(r *http.Request) *API {
	a := &API{ip: ip, state: ip.State(r)}
	if tok, ok := a.state.Get(keyToken, nil).(api.Token); ok && tok.Valid() {
		a.token = &tok
	}
	a.bind()
	return a
}

// API is one user's access to the remote API for the duration of a request.
type API struct {
	ip     *Ipernity
	state  *State
	token  *api.Token
	client *api.Client
	caller Caller
}

func (a *API) bind() {
	var token string
	if a.token != nil {
		token = a.token.Token
	}
	a.client = a.ip.client.WithToken(token)
	a.caller = a.client
	if a.ip.cfg.CacheRequests {
		c := NewCache(a.client, a.state, token, a.ip.cfg.cacheTimeout(), a.ip.now)
		c.logger = a.ip.logger.Named("cache")
		c.metrics = a.ip.metrics
		a.caller = c
	}
}

// Call invokes an API method as the current user.
func (a *API) Call(ctx context.Context, method string, params api.Params) (api.Response, error) {
	if !a.ip.cfg.CacheRequests {
		a.ip.metrics.apiCall(method)
	}
	return a.caller.Call(ctx, method, params)
}

// Token returns the session's token, or nil when unauthenticated.
func (a *API) Token() *api.Token {
	return a.token
}

// Client returns the underlying client, bound to the session's token.
func (a *API) Client() *api.Client {
	return a.client
}

// State returns the namespaced session state backing this API.
func (a *API) State() *State {
	return a.state
}

// HasPermissions reports whether the session's token grants perms. Nothing
// is granted without a token, not even an empty set.
func (a *API) HasPermissions(perms api.Permissions) bool {
	if a.token == nil {
		return false
	}
	return a.token.Permissions.Satisfies(perms)
}

// Logout forgets the token and every other value the extension stored in
// the session. Calling it without a token is a no-op.
func (a *API) Logout() {
	a.state.Clear()
	a.token = nil
	a.bind()
}

// DefaultErrorHandler replies 400 for a missing frob, 502 for errors
// reported by the remote API and 500 otherwise.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *api.Error
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNoFrob):
		status = http.StatusBadRequest
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
	}
	http.Error(w, err.Error(), status)
}
