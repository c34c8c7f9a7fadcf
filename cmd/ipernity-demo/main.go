package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/bluescreen10/ipernity"
	"github.com/bluescreen10/ipernity/api"
	"github.com/bluescreen10/ipernity/logger"
)

func main() {
	app := cli.App{
		Name:   "ipernity-demo",
		Usage:  "web server demonstrating Ipernity authentication, caching and media proxying",
		Action: runServer,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML settings file",
				EnvVars: []string{"IPERNITY_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "app-key",
				Usage:   "Ipernity application key (overrides the config file)",
				EnvVars: []string{"IPERNITY_APP_KEY"},
			},
			&cli.StringFlag{
				Name:    "app-secret",
				Usage:   "Ipernity application secret (overrides the config file)",
				EnvVars: []string{"IPERNITY_APP_SECRET"},
			},
			&cli.StringFlag{
				Name:    "bind",
				Usage:   "address to listen on",
				Value:   ":8080",
				EnvVars: []string{"BIND"},
			},
			&cli.StringFlag{
				Name:    "store",
				Usage:   "session backend: memory, redis, sqlite, mysql or cookie",
				Value:   "memory",
				EnvVars: []string{"SESSION_STORE"},
			},
			&cli.StringFlag{
				Name:    "store-dsn",
				Usage:   "address, file or DSN of the session backend",
				EnvVars: []string{"SESSION_STORE_DSN"},
			},
			&cli.StringFlag{
				Name:    "session-secret",
				Usage:   "key authenticating session cookies (cookie store only)",
				EnvVars: []string{"SESSION_SECRET"},
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "log at debug level",
				EnvVars: []string{"DEBUG"},
			},
		},
	}
	app.RunAndExitOnError()
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// loadConfig reads the config file when given. Without one the demo mounts
// every route the extension offers.
func loadConfig(cctx *cli.Context) (ipernity.Config, error) {
	cfg := ipernity.DefaultConfig()
	cfg.Callback = true
	cfg.Login = true
	cfg.ProxyDocs = true
	if path := cctx.String("config"); path != "" {
		var err error
		if cfg, err = ipernity.ReadConfigFile(path); err != nil {
			return cfg, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	if key := cctx.String("app-key"); key != "" {
		cfg.AppKey = key
	}
	if secret := cctx.String("app-secret"); secret != "" {
		cfg.AppSecret = secret
	}
	return cfg, cfg.Validate()
}

func runServer(cctx *cli.Context) error {
	zl, err := newLogger(cctx.Bool("debug"))
	if err != nil {
		return err
	}
	defer zl.Sync()
	log := zl.Sugar()

	cfg, err := loadConfig(cctx)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hs, err := openSessions(ctx, cctx.String("store"), cctx.String("store-dsn"), cctx.String("session-secret"), log.Named("sessions"))
	if err != nil {
		return err
	}
	defer hs.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ip, err := ipernity.New(cfg, hs.source,
		ipernity.WithLogger(log.Named("ipernity")),
		ipernity.WithRegisterer(reg),
	)
	if err != nil {
		return err
	}

	srv := &server{ip: ip, log: log}
	mux := ipernity.NewServeMux()
	mux.Use(logger.New(log.Named("http"), logger.WithSkipPaths("/metrics")))

	ip.Register(mux)
	mux.HandleFunc("GET /{$}", srv.home)
	mux.HandleFunc("GET /popular", srv.popular)
	mux.HandleFunc("GET /stats", srv.stats)
	mux.Handle("GET /albums", ip.RequirePermissions(api.Permissions{"doc": "read"}).Handler(http.HandlerFunc(srv.albums)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{
		Addr:              cctx.String("bind"),
		Handler:           hs.middleware.Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Infow("starting http server", "bind", httpSrv.Addr, "store", cctx.String("store"))
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Infow("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

type server struct {
	ip  *ipernity.Ipernity
	log *zap.SugaredLogger
}

var tmplHome = template.Must(template.New("home").Parse(`<!doctype html>
<title>Ipernity demo</title>
{{if .User.IsAuthenticated}}
<p>Hello {{or .User.Realname .User.Username}}.{{with .Logout}} <a href="{{.}}">Log out</a>{{end}}</p>
{{else}}{{with .Login}}
<p><a href="{{.}}">Log in with Ipernity</a></p>
{{end}}{{end}}
<ul>
<li><a href="/popular">Popular documents</a> (cached)</li>
<li><a href="/albums">Your albums</a> (needs doc:read)</li>
<li><a href="/stats">Session statistics</a></li>
</ul>
`))

func (s *server) home(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"User": s.ip.CurrentUser(r)}
	if cfg := s.ip.Config(); cfg.Login {
		data["Login"] = s.ip.LoginURL()
		data["Logout"] = cfg.LoginURLPrefix + "/logout"
	}
	err := tmplHome.Execute(w, data)
	if err != nil {
		s.log.Errorw("rendering home", "error", err)
	}
}

func (s *server) popular(w http.ResponseWriter, r *http.Request) {
	res, err := s.ip.API(r).Call(r.Context(), "explore.docs.getPopular", api.Params{"per_page": "20"})
	s.reply(w, r, res, err)
}

func (s *server) albums(w http.ResponseWriter, r *http.Request) {
	res, err := s.ip.API(r).Call(r.Context(), "album.getList", nil)
	s.reply(w, r, res, err)
}

func (s *server) stats(w http.ResponseWriter, r *http.Request) {
	st := s.ip.State(r)
	s.reply(w, r, map[string]int{
		"api_calls":          st.GetInt("api_calls", 0),
		"returns_from_cache": st.GetInt("returns_from_cache", 0),
	}, nil)
}

func (s *server) reply(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		ipernity.DefaultErrorHandler(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnw("writing response", "error", err)
	}
}
