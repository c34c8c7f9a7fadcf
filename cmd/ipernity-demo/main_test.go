package main

import (
	"context"
	"flag"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/bluescreen10/ipernity"
)

func testContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String("config", "", "")
	set.String("app-key", "", "")
	set.String("app-secret", "", "")
	require.NoError(t, set.Parse(args))
	return cli.NewContext(nil, set, nil)
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipernity.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app_key: file\napp_secret: s\ncache_requests: true\n"), 0o600))

	cfg, err := loadConfig(testContext(t, "-config", path, "-app-key", "flag"))
	require.NoError(t, err)
	assert.Equal(t, "flag", cfg.AppKey)
	assert.Equal(t, "s", cfg.AppSecret)
	assert.True(t, cfg.CacheRequests)
}

func TestLoadConfigWithoutFileEnablesRoutes(t *testing.T) {
	cfg, err := loadConfig(testContext(t, "-app-key", "k", "-app-secret", "s"))
	require.NoError(t, err)
	assert.True(t, cfg.Callback)
	assert.True(t, cfg.Login)
	assert.True(t, cfg.ProxyDocs)
}

type values map[string]any

func (v values) Get(key string) any        { return v[key] }
func (v values) Set(key string, value any) { v[key] = value }
func (v values) Delete(key string)         { delete(v, key) }
func (v values) Keys() []string            { return nil }

func TestHomeLinks(t *testing.T) {
	for _, login := range []bool{true, false} {
		cfg := ipernity.DefaultConfig()
		cfg.AppKey, cfg.AppSecret = "k", "s"
		cfg.Login = login
		ip, err := ipernity.New(cfg, func(*http.Request) ipernity.Values { return values{} })
		require.NoError(t, err)

		srv := &server{ip: ip, log: zap.NewNop().Sugar()}
		w := httptest.NewRecorder()
		srv.home(w, httptest.NewRequest("GET", "/", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, login, strings.Contains(w.Body.String(), ip.LoginURL()), "login=%v", login)
	}
}

func TestLoadConfigRequiresCredentials(t *testing.T) {
	_, err := loadConfig(testContext(t))
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := zap.NewNop().Sugar()

	store, closeStore, err := openStore(ctx, "memory", "", log)
	require.NoError(t, err)
	assert.NotNil(t, store)
	closeStore()

	store, closeStore, err = openStore(ctx, "sqlite", filepath.Join(t.TempDir(), "sessions.db"), log)
	require.NoError(t, err)
	assert.NotNil(t, store)
	closeStore()

	_, _, err = openStore(ctx, "floppy", "", log)
	assert.Error(t, err)

	_, err = openSessions(ctx, "cookie", "", "", log)
	assert.Error(t, err)
}
