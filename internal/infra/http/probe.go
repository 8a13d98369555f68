package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Probe serves /healthz and /metrics for processes that have no public API,
// such as the verification worker.
type Probe struct {
	addr  string
	r     *gin.Engine
	store Pinger
	log   *zap.Logger
}

func NewProbe(addr string, store Pinger, gatherer prometheus.Gatherer, log *zap.Logger) *Probe {
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	p := &Probe{addr: addr, r: r, store: store, log: log}
	r.GET("/healthz", p.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return p
}

func (p *Probe) Handler() http.Handler {
	return p.r
}

func (p *Probe) handleHealth(c *gin.Context) {
	if p.store != nil {
		if err := p.store.Ping(c.Request.Context()); err != nil {
			p.log.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (p *Probe) Run(ctx context.Context) error {
	srv := &http.Server{Addr: p.addr, Handler: p.r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

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
	return srv.Shutdown(shutdownCtx)
}
