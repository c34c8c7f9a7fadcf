package ipernity

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bluescreen10/ipernity/api"
	"github.com/bluescreen10/ipernity/session"
)

func init() {
	session.Register(api.Token{})
	session.Register(map[string]CacheEntry{})
}

// Caller performs API method calls. *api.Client and *Cache implement it.
type Caller interface {
	Call(ctx context.Context, method string, params api.Params) (api.Response, error)
}

// CacheEntry is a memoized API reply. It is valid while now < ExpiresAt.
type CacheEntry struct {
	Result    []byte
	ExpiresAt time.Time
}

// Cache is a read-through cache of API replies kept in the user's session.
// Entries are keyed by method, token and the canonical parameter encoding.
// Expired entries are only replaced when the same call is made again; the
// cache is never pruned and grows for the lifetime of the session.
//
// A Cache belongs to a single request and is not safe for concurrent use.
type Cache struct {
	next    Caller
	state   *State
	token   string
	timeout time.Duration
	now     func() time.Time
	logger  *zap.SugaredLogger
	metrics *metrics
}

// NewCache wraps next so that replies are stored in state for timeout.
// token is the access token next authenticates with. A nil now uses
// time.Now.
func NewCache(next Caller, state *State, token string, timeout time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		next:    next,
		state:   state,
		token:   token,
		timeout: timeout,
		now:     now,
		logger:  zap.NewNop().Sugar(),
	}
}

// Call returns the cached reply for the call if it has not expired, and
// otherwise calls through and stores the reply. Errors are not cached.
func (c *Cache) Call(ctx context.Context, method string, params api.Params) (api.Response, error) {
	key := cacheKey(method, c.token, params)
	entries := c.entries()

	if e, ok := entries[key]; ok && c.now().Before(e.ExpiresAt) {
		var res api.Response
		if err := json.Unmarshal(e.Result, &res); err == nil {
			c.logger.Debugw("returning result from cache", "method", method, "params", params.Encode())
			c.state.Incr(keyReturnsFromCache)
			c.metrics.cacheHit(method)
			return res, nil
		}
	}

	res, err := c.next.Call(ctx, method, params)
	c.state.Incr(keyAPICalls)
	c.metrics.apiCall(method)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Warnw("result not cacheable", "method", method, "error", err)
		return res, nil
	}
	entries[key] = CacheEntry{Result: data, ExpiresAt: c.now().Add(c.timeout)}
	c.state.Set(keyCache, entries)
	return res, nil
}

func (c *Cache) entries() map[string]CacheEntry {
	if m, ok := c.state.Get(keyCache, nil).(map[string]CacheEntry); ok {
		return m
	}
	return make(map[string]CacheEntry)
}

func cacheKey(method, token string, params api.Params) string {
	return strings.Join([]string{method, token, params.Encode()}, "\x00")
}
