package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/skekre98/composer/capability"
	"github.com/skekre98/composer/config"
	"github.com/skekre98/composer/logging"
)

// Server provides the http capability: a gin router modules mount routes on
// from their init hooks, and the listener the host starts and stops.
type Server struct {
	engine *gin.Engine
	srv    *http.Server
	logger *slog.Logger

	mu   sync.Mutex
	addr string
}

// New builds a server from cfg. Nothing listens until Start. A nil l
// discards logs.
func New(cfg config.ServerConfig, l *slog.Logger, opts ...Option) *Server {
	if l == nil {
		l = logging.Discard()
	}
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	if o.Mode == "" {
		o.Mode = gin.ReleaseMode
	}
	gin.SetMode(o.Mode)

	r := gin.New()
	r.Use(RequestID(), RecoveryProblem(l), AccessLog(l))
	r.Use(o.Middlewares...)
	for _, reg := range o.Routes {
		reg(r)
	}

	return &Server{
		engine: r,
		logger: l,
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

func (s *Server) Capability() string { return capability.HTTPCapability }

// Router is where modules mount their routes.
func (s *Server) Router() Router { return s.engine }

// Handler exposes the engine, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.engine }

// Addr is the bound address once Start returned, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr != "" {
		return s.addr
	}
	return s.srv.Addr
}

// Start binds the listener and serves in the background.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", s.srv.Addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		s.logger.Info("http server starting", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Routes lists the mounted routes as "METHOD path".
func (s *Server) Routes() []string {
	var out []string
	for _, ri := range s.engine.Routes() {
		out = append(out, ri.Method+" "+ri.Path)
	}
	return out
}
