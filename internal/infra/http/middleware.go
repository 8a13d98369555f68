package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"sigqueue/internal/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	routeRegister = "accounts:register"
	routeSubmit   = "accounts:submit"
	routeStatus   = "accounts:status"
)

// observeRequests logs one line per request and feeds the HTTP collectors.
func (s *Server) observeRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	elapsed := time.Since(start)

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	status := c.Writer.Status()
	s.metrics.Observe(route, status, elapsed)

	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("route", route),
		zap.Int("status", status),
		zap.Duration("elapsed", elapsed),
		zap.String("client_ip", c.ClientIP()),
	}
	if status >= http.StatusInternalServerError {
		s.log.Warn("request", fields...)
		return
	}
	s.log.Debug("request", fields...)
}

func (s *Server) enforceRateLimit(c *gin.Context, routeID, accountID string) bool {
	if s.rateLimiter == nil || s.rateLimitRequests <= 0 {
		return true
	}
	key := fmt.Sprintf("account:%s:endpoint:%s", accountID, routeID)
	decision, err := s.rateLimiter.Allow(c.Request.Context(), key, s.rateLimitRequests, s.rateLimitWindow)
	if err != nil {
		s.log.Warn("rate limiter unavailable", zap.Error(err))
		if s.rateLimitFailClosed {
			writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMIT_UNAVAILABLE", "rate limiter unavailable")
			return false
		}
		return true
	}
	writeRateLimitHeaders(c, decision)
	if !decision.Allowed {
		writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
		return false
	}
	return true
}

func writeRateLimitHeaders(c *gin.Context, decision domain.RateLimitDecision) {
	if decision.Limit > 0 {
		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
	}
	if decision.Remaining >= 0 {
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	}
	if decision.ResetAt.IsZero() {
		return
	}
	c.Header("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	if !decision.Allowed {
		retryAfter := max(int64(time.Until(decision.ResetAt).Seconds()), 0)
		c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
	}
}
