package ipernity

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bluescreen10/ipernity/api"
)

// Config holds the extension settings. Field comments give the YAML keys.
type Config struct {
	// Application credentials. (app_key, app_secret)
	AppKey    string `yaml:"app_key"`
	AppSecret string `yaml:"app_secret"`

	// Remote endpoints, empty for the production defaults. (api_url, auth_url)
	APIURL  string `yaml:"api_url"`
	AuthURL string `yaml:"auth_url"`

	// CacheRequests wraps API calls in the session cache. (cache_requests)
	CacheRequests bool `yaml:"cache_requests"`
	// CacheMaxAge is the cache lifetime in seconds. (cache_max_age)
	CacheMaxAge int `yaml:"cache_max_age"`

	// Callback mounts GET {CallbackURLPrefix}/cb. (callback, callback_url_prefix)
	Callback          bool   `yaml:"callback"`
	CallbackURLPrefix string `yaml:"callback_url_prefix"`

	// Login mounts GET {LoginURLPrefix}/login and /logout and records the
	// logged in user on callback. (login, login_url_prefix)
	Login          bool   `yaml:"login"`
	LoginURLPrefix string `yaml:"login_url_prefix"`

	// Permissions is the default set requested by Authorize and
	// RequirePermissions. (permissions)
	Permissions api.Permissions `yaml:"permissions"`

	// SessionPrefix namespaces every session key. (session_prefix)
	SessionPrefix string `yaml:"session_prefix"`

	// ProxyDocs mounts GET {ProxyURLPrefix}/doc/{doc_id}/{label}.
	// (proxy_docs, proxy_url_prefix)
	ProxyDocs      bool   `yaml:"proxy_docs"`
	ProxyURLPrefix string `yaml:"proxy_url_prefix"`
}

// DefaultConfig returns the settings used for anything not configured. No
// route is enabled by default.
func DefaultConfig() Config {
	return Config{
		APIURL:            api.DefaultAPIURL,
		AuthURL:           api.DefaultAuthURL,
		CacheMaxAge:       300,
		CallbackURLPrefix: "/ipernity",
		LoginURLPrefix:    "/ipernity",
		Permissions:       api.Permissions{},
		SessionPrefix:     "ipernity_",
		ProxyURLPrefix:    "/ipernity",
	}
}

// LoadConfig decodes YAML settings on top of DefaultConfig. Unknown keys are
// rejected.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, cfg.Validate()
}

// ReadConfigFile loads settings from a YAML file.
func ReadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return LoadConfig(f)
}

// Validate reports settings the extension cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.AppKey == "" {
		errs = append(errs, errors.New("app_key is required"))
	}
	if c.AppSecret == "" {
		errs = append(errs, errors.New("app_secret is required"))
	}
	if c.SessionPrefix == "" {
		errs = append(errs, errors.New("session_prefix is required"))
	}
	if c.CacheMaxAge < 0 {
		errs = append(errs, errors.New("cache_max_age must not be negative"))
	}
	for _, p := range []string{c.CallbackURLPrefix, c.LoginURLPrefix, c.ProxyURLPrefix} {
		if p != "" && !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("url prefix %q must start with /", p))
		}
	}
	for category, level := range c.Permissions {
		if _, ok := api.ParseLevel(level); !ok {
			errs = append(errs, fmt.Errorf("permission %s: unknown level %q", category, level))
		}
	}
	return errors.Join(errs...)
}

func (c Config) cacheTimeout() time.Duration {
	return time.Duration(c.CacheMaxAge) * time.Second
}
