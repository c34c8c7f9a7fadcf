package ipernity_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluescreen10/ipernity"
	"github.com/bluescreen10/ipernity/api"
)

// mapValues is a single in-memory session shared by every request.
type mapValues map[string]any

func (m mapValues) Get(key string) any        { return m[key] }
func (m mapValues) Set(key string, value any) { m[key] = value }
func (m mapValues) Delete(key string)         { delete(m, key) }

func (m mapValues) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fakeIpernity answers the handful of API methods the tests use.
type fakeIpernity struct {
	*httptest.Server

	mu    sync.Mutex
	calls map[string]int
}

var grants = map[string]api.Permissions{
	"frob-none": {"doc": "none"},
	"frob-read": {"doc": "read"},
}

func newFakeIpernity(t *testing.T) *fakeIpernity {
	t.Helper()
	f := &fakeIpernity{calls: make(map[string]int)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/{method}/json", f.serveAPI)
	mux.HandleFunc("GET /media/{name}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("name") == "broken.jpg" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		fmt.Fprintf(w, "jpeg:%s", r.PathValue("name"))
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeIpernity) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeIpernity) serveAPI(w http.ResponseWriter, r *http.Request) {
	method := r.PathValue("method")
	f.mu.Lock()
	f.calls[method]++
	f.mu.Unlock()

	r.ParseForm()
	reply := map[string]any{"api": map[string]any{"status": "ok"}}
	fail := func(code int, msg string) {
		reply["api"] = map[string]any{"status": "error", "code": code, "message": msg}
	}

	switch method {
	case "auth.getToken":
		frob := r.PostForm.Get("frob")
		perms, ok := grants[frob]
		if !ok {
			fail(2, "Invalid frob")
			break
		}
		reply["auth"] = map[string]any{
			"token":       "tok-" + frob,
			"permissions": perms,
			"user":        map[string]any{"user_id": "42", "username": "jane", "realname": "Jane Doe"},
		}
	case "user.get":
		if r.PostForm.Get("auth_token") == "" {
			fail(100, "Invalid token")
			break
		}
		reply["user"] = map[string]any{"user_id": "42", "username": "jane"}
	case "explore.docs.getPopular":
		reply["docs"] = map[string]any{"total": "1"}
	case "doc.getMedias":
		if r.PostForm.Get("doc_id") != "1" {
			fail(1, "Document not found")
			break
		}
		reply["doc"] = map[string]any{
			"doc_id":   "1",
			"original": map[string]any{"url": f.URL + "/media/original.jpg", "filename": "sunset.jpg"},
			"thumbs": map[string]any{"thumb": []any{
				map[string]any{"label": "240", "ext": ".jpg", "url": f.URL + "/media/240.jpg"},
				map[string]any{"label": "broken", "ext": ".jpg", "url": f.URL + "/media/broken.jpg"},
			}},
		}
	default:
		fail(3, "Unknown method")
	}

	json.NewEncoder(w).Encode(reply)
}

func testConfig(f *fakeIpernity) ipernity.Config {
	cfg := ipernity.DefaultConfig()
	cfg.AppKey = "key"
	cfg.AppSecret = "secret"
	cfg.APIURL = f.URL + "/api"
	cfg.AuthURL = f.URL + "/authorize"
	cfg.Callback = true
	cfg.ProxyDocs = true
	return cfg
}

// newIpernity returns an extension whose every request shares one session.
func newIpernity(t *testing.T, cfg ipernity.Config, opts ...ipernity.Option) (*ipernity.Ipernity, mapValues) {
	t.Helper()
	sess := mapValues{}
	ip, err := ipernity.New(cfg, func(*http.Request) ipernity.Values { return sess }, opts...)
	require.NoError(t, err)
	return ip, sess
}

// fakeClock is a settable time source.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func serve(h http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", target, nil))
	return w
}
