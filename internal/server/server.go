package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ppiankov/autoclaim/internal/model"
	"github.com/ppiankov/autoclaim/internal/pipeline"
	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"
)

// Runner decides one claim
type Runner interface {
	Run(ctx context.Context, claim model.ClaimInfo) (*pipeline.Result, error)
}

// Config holds server configuration
type Config struct {
	Addr           string
	AllowAll       bool  // allow all CORS origins
	MaxUploadBytes int64 // largest accepted claim document
	WriteTimeout   time.Duration
}

// ConfigFrom maps the server section of the configuration. Responses may
// take as long as a whole pipeline run, so the write timeout covers it.
func ConfigFrom(cfg model.ServerConfig, runTimeout time.Duration) Config {
	return Config{
		Addr:           cfg.Addr,
		AllowAll:       cfg.AllowAllOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
		WriteTimeout:   runTimeout + 30*time.Second,
	}
}

// Server is the claim upload page and decision API
type Server struct {
	cfg        Config
	runner     Runner
	logger     logrus.FieldLogger
	md         goldmark.Markdown
	router     chi.Router
	httpServer *http.Server
}

// New creates a server deciding claims through runner
func New(cfg Config, runner Runner, logger logrus.FieldLogger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8501"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 1 << 20
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = pipeline.DefaultTimeout + 30*time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Server{
		cfg:    cfg,
		runner: runner,
		logger: logger,
		md:     goldmark.New(),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	corsOpts := cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/", s.handleIndex)
	r.Post("/", s.handleUpload)
	r.Post("/api/v1/decisions", s.handleDecide)

	return r
}

// Router returns the chi router
func (s *Server) Router() chi.Router { return s.router }

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("autoclaim server listening on %s", s.cfg.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func requestLogger(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).Round(time.Millisecond),
			}).Info("request")
		})
	}
}
