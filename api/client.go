// Package api is a client for the Ipernity REST API.
//
// Calls are signed with the application secret and sent as form posts to
// {APIURL}/{method}/json. Web authentication uses the "frob" flow: the user
// is sent to AuthURL, Ipernity redirects back to the application's callback
// with a frob, and GetToken exchanges it for a Token.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"
)

const (
	DefaultAPIURL  = "https://api.ipernity.com/api"
	DefaultAuthURL = "https://www.ipernity.com/apps/authorize"
)

// Response is a decoded API reply.
type Response map[string]any

// Map returns the nested object stored under key, or nil.
func (r Response) Map(key string) Response {
	m, _ := r[key].(map[string]any)
	return Response(m)
}

// Slice returns the nested list stored under key, or nil.
func (r Response) Slice(key string) []any {
	s, _ := r[key].([]any)
	return s
}

// String returns the value stored under key formatted as a string.
func (r Response) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Client calls the API on behalf of one application and, optionally, one
// authenticated user token. It is safe for concurrent use.
type Client struct {
	key        string
	secret     string
	token      string
	apiURL     string
	authURL    string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIURL overrides the API endpoint. (default DefaultAPIURL)
func WithAPIURL(u string) Option {
	return Option(func(c *Client) {
		c.apiURL = strings.TrimSuffix(u, "/")
	})
}

// WithAuthURL overrides the web authorization endpoint. (default DefaultAuthURL)
func WithAuthURL(u string) Option {
	return Option(func(c *Client) {
		c.authURL = u
	})
}

// WithHTTPClient sets the HTTP client. (default a cleanhttp pooled client)
func WithHTTPClient(hc *http.Client) Option {
	return Option(func(c *Client) {
		c.httpClient = hc
	})
}

// WithLogger sets the logger. (default no-op)
func WithLogger(logger *zap.SugaredLogger) Option {
	return Option(func(c *Client) {
		c.logger = logger
	})
}

// New creates a client for the application identified by key and secret.
func New(key, secret string, cfgs ...Option) *Client {
	c := &Client{
		key:        key,
		secret:     secret,
		apiURL:     DefaultAPIURL,
		authURL:    DefaultAuthURL,
		httpClient: cleanhttp.DefaultPooledClient(),
		logger:     zap.NewNop().Sugar(),
	}
	for _, cfg := range cfgs {
		cfg(c)
	}
	return c
}

// WithToken returns a copy of the client that authenticates calls with token.
// An empty token yields an anonymous client.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Token returns the user token the client authenticates with, if any.
func (c *Client) Token() string {
	return c.token
}

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Call invokes an API method and returns its decoded reply. Failures reported
// by the API are returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params Params) (Response, error) {
	body, err := c.do(ctx, method, params)
	if err != nil {
		return nil, err
	}

	var res Response
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("ipernity: %s: decoding response: %w", method, err)
	}
	return res, nil
}

// AuthURL returns the URL the user must visit to grant perms to the
// application.
func (c *Client) AuthURL(perms Permissions) string {
	params := perms.authParams()
	params["api_key"] = c.key
	params["api_sig"] = params.sign("", c.secret)
	return c.authURL + "?" + params.values().Encode()
}

// Token is an authenticated user's credential together with the
// permissions it grants.
type Token struct {
	Token       string      `json:"token"`
	Permissions Permissions `json:"permissions"`
	User        User        `json:"user"`
}

// Valid reports whether the token carries a credential.
func (t Token) Valid() bool {
	return t.Token != ""
}

// User identifies the owner of a Token.
type User struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Realname string `json:"realname"`
}

// GetToken exchanges a frob received on the web authentication callback
// for a Token.
func (c *Client) GetToken(ctx context.Context, frob string) (Token, error) {
	body, err := c.do(ctx, "auth.getToken", Params{"frob": frob})
	if err != nil {
		return Token{}, err
	}

	var res struct {
		Auth Token `json:"auth"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return Token{}, fmt.Errorf("ipernity: auth.getToken: decoding response: %w", err)
	}
	if !res.Auth.Valid() {
		return Token{}, fmt.Errorf("ipernity: auth.getToken: response carries no token")
	}
	return res.Auth, nil
}

// do sends a signed call and returns the raw body once the API status has
// been checked.
func (c *Client) do(ctx context.Context, method string, params Params) ([]byte, error) {
	p := params.clone()
	p["api_key"] = c.key
	if c.token != "" {
		p["auth_token"] = c.token
	}
	p["api_sig"] = p.sign(method, c.secret)

	endpoint := c.apiURL + "/" + method + "/json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(p.values().Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	c.logger.Debugw("calling api", "method", method, "params", params.Encode())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipernity: %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ipernity: %s: reading response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ipernity: %s: unexpected status %d", method, resp.StatusCode)
	}

	if err := checkStatus(method, body); err != nil {
		return nil, err
	}
	return body, nil
}

type status struct {
	API struct {
		Status  string `json:"status"`
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"api"`
}

func checkStatus(method string, body []byte) error {
	var st status
	if err := json.Unmarshal(body, &st); err != nil {
		return fmt.Errorf("ipernity: %s: decoding response: %w", method, err)
	}
	if st.API.Status != "error" {
		return nil
	}

	apiErr := &Error{Method: method, Message: st.API.Message}
	switch code := st.API.Code.(type) {
	case float64:
		apiErr.Code = int(code)
	case string:
		apiErr.Code, _ = strconv.Atoi(code)
	}
	return apiErr
}
