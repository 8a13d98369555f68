package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"sigqueue/internal/config"
	"sigqueue/internal/domain"
	"sigqueue/internal/infra/metrics"
	"sigqueue/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	cfg       config.Config
	r         *gin.Engine
	admission *usecase.Admission
	store     Pinger
	log       *zap.Logger
	metrics   *metrics.HTTP
	registry  *prometheus.Registry

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

type ServerDeps struct {
	Admission   *usecase.Admission
	Store       Pinger
	RateLimiter domain.RateLimiter
	Logger      *zap.Logger
	// Registry receives the HTTP collectors and is served on /metrics.
	// A fresh registry is used when nil.
	Registry *prometheus.Registry
}

func NewServer(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:       cfg,
		r:         r,
		admission: deps.Admission,
		store:     deps.Store,
		log:       deps.Logger,
		registry:  deps.Registry,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.metrics = metrics.NewHTTP(s.registry)
	s.initRateLimit(deps.RateLimiter)

	r.Use(s.observeRequests)
	s.routes()
	return s
}

func (s *Server) initRateLimit(limiter domain.RateLimiter) {
	s.rateLimiter = limiter
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealth)
	s.r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	accounts := s.r.Group("/accounts/:account_id")
	{
		accounts.POST("", s.handleRegister)
		accounts.POST("/sign/:transaction_id", s.handleSubmit)
		accounts.GET("/sign/:transaction_id", s.handleStatus)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("admission api listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
