package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"parkingo-client/internal/mw"
)

// RouterConfig configures the loopback callback server.
type RouterConfig struct {
	CallbackPath    string
	RateLimitPerSec float64
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
}

// NewRouter creates and configures the callback router.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.Default()

	// Rate limit per client IP with a small burst
	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), 5)

	r.GET("/healthz", h.Health)

	auth := r.Group("")
	auth.Use(rateLimiter)
	{
		auth.GET(cfg.CallbackPath, h.Callback)
	}

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	return r
}
