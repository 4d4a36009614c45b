// Package server serves dashboard pages, the websocket endpoint, the client
// runtime and the operational endpoints (/healthz, metrics, pprof).
package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tileboard/internal/dashboard"
	"tileboard/internal/pubsub"
	"tileboard/internal/transport/ws"
	"tileboard/pkg/logx"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Pprof           bool
	// MetricsPath mounts the prometheus handler; empty disables it.
	MetricsPath string
	WS          ws.Config
}

type Server struct {
	cfg      Config
	log      logx.Logger
	broker   *pubsub.Broker
	gatherer prometheus.Gatherer
	health   func() error
	status   func() any

	dashboards map[string]*dashboard.Dashboard
	order      []*dashboard.Dashboard

	pages   *template.Template
	handler http.Handler
}

type Option func(*Server)

// WithGatherer sets the registry served on the metrics path
// (default prometheus.DefaultGatherer).
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Server) { s.gatherer = g } }

// WithHealth adds a check to /healthz; a non-nil error reports 503.
func WithHealth(fn func() error) Option { return func(s *Server) { s.health = fn } }

// WithStatus adds fn's result to the /healthz body under "routines".
func WithStatus(fn func() any) Option { return func(s *Server) { s.status = fn } }

func New(cfg Config, dashboards []*dashboard.Dashboard, broker *pubsub.Broker, log logx.Logger, opts ...Option) (*Server, error) {
	if broker == nil {
		return nil, errors.New("server: broker is nil")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	pages, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:        cfg,
		log:        log,
		broker:     broker,
		gatherer:   prometheus.DefaultGatherer,
		dashboards: map[string]*dashboard.Dashboard{},
		pages:      pages,
	}
	for _, o := range opts {
		o(s)
	}
	for _, d := range dashboards {
		if _, dup := s.dashboards[d.ID()]; dup {
			return nil, errors.New("server: duplicate dashboard " + d.ID())
		}
		s.dashboards[d.ID()] = d
		s.order = append(s.order, d)
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/d/{name}", s.handleDashboard)
	r.Get("/healthz", s.handleHealth)

	wsHandler := ws.NewHandler(s.cfg.WS, s.lookupNamespace, s.log.With(logx.Component("ws")))
	r.Method(http.MethodGet, "/ws/{name}", wsHandler)

	static, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.Route("/api/dashboards", func(r chi.Router) {
		r.Get("/", s.handleListDashboards)
		r.Get("/{name}", s.handleDashboardModel)
		r.Get("/{name}/jobs", s.handleJobs)
		r.Get("/{name}/widgets/{widget}", s.handleWidget)
		r.Post("/{name}/jobs/{widget}/fire", s.handleFire)
	})

	if s.cfg.MetricsPath != "" {
		r.Handle(s.cfg.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.cfg.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

func (s *Server) lookupNamespace(r *http.Request) (*pubsub.Namespace, bool) {
	name := chi.URLParam(r, "name")
	if _, ok := s.dashboards[name]; !ok {
		return nil, false
	}
	return s.broker.Lookup(name)
}

// requestLogger logs non-websocket requests at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("req_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Run serves on cfg.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("http server listening", logx.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := srv.Shutdown(sctx)
	if err != nil {
		s.log.Warn("http shutdown incomplete", logx.Err(err))
		_ = srv.Close()
	}
	s.log.Info("http server stopped")
	return nil
}
