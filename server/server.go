// Package server serves the survival prediction form, a JSON prediction
// API, a health check and Prometheus metrics.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/YuminosukeSato/titanic-survival/config"
	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
	"github.com/YuminosukeSato/titanic-survival/pkg/log"
)

// Server wires the model holder, routes and middleware into an HTTP server.
type Server struct {
	cfg     config.Server
	holder  *ModelHolder
	metrics *Metrics
	limiter *Limiter
	logger  log.Logger
	router  *mux.Router

	mu   sync.Mutex
	addr net.Addr
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithModelHolder shares an existing holder.
func WithModelHolder(h *ModelHolder) Option {
	return func(s *Server) { s.holder = h }
}

// New builds the router. The model is loaded by Run or through Holder().
func New(cfg config.Server, opts ...Option) *Server {
	s := &Server{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.GetLoggerWithName("server")
	}
	s.logger = s.logger.With(log.StageKey, log.StageServing)
	if s.holder == nil {
		s.holder = NewModelHolder()
	}
	s.metrics = NewMetrics()
	s.limiter = NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	r := mux.NewRouter()
	r.Use(requestIDMiddleware, accessLogMiddleware(s.logger), s.metrics.Middleware)
	NewHandler(s.holder, s.metrics, s.logger).RegisterRoutes(r)

	// the limiter wraps the router so it also covers unmatched paths
	s.router = mux.NewRouter()
	s.router.PathPrefix("/").Handler(s.limiter.Middleware(ClientIP)(r))
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Holder returns the model holder.
func (s *Server) Holder() *ModelHolder { return s.holder }

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Addr returns the bound address once Run is listening, else nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// LoadModel loads cfg.ModelPath into the holder.
func (s *Server) LoadModel() error {
	err := s.holder.Load(s.cfg.ModelPath)
	s.metrics.observeReload(err)
	return err
}

// Run serves until ctx is cancelled, then shuts down gracefully. A missing
// model is not fatal: prediction routes answer 503 until one appears.
func (s *Server) Run(ctx context.Context) error {
	if err := s.LoadModel(); err != nil {
		s.logger.Warn("Model not loaded, serving without a model", err, log.PathKey, s.cfg.ModelPath)
	} else {
		s.logger.Info("Model loaded", log.PathKey, s.cfg.ModelPath)
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return perrors.Wrapf(err, "listen on %s", s.cfg.Addr)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout(),
		WriteTimeout: s.cfg.WriteTimeout(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Server listening", "http.addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !perrors.Is(err, http.ErrServerClosed) {
			return perrors.Wrap(err, "serve")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout())
		defer cancel()
		s.logger.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	})
	if s.cfg.WatchModel && s.cfg.ModelPath != "" {
		g.Go(func() error {
			return s.watchModel(gctx, s.cfg.ModelPath)
		})
	}

	err = g.Wait()
	s.logger.Info("Server stopped")
	return err
}
