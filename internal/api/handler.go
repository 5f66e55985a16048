package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"parkingo-client/internal/session"
)

// RedirectHandler completes sign-in from the OAuth redirect URL.
type RedirectHandler interface {
	HandleRedirect(ctx context.Context, rawURL string) error
}

// Handler holds shared dependencies for the callback handlers.
type Handler struct {
	session RedirectHandler
	done    chan struct{}
	once    sync.Once
}

// NewHandler creates a new callback handler.
func NewHandler(s RedirectHandler) *Handler {
	return &Handler{
		session: s,
		done:    make(chan struct{}),
	}
}

// Done is closed after the first successful sign-in redirect.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Callback handles GET <callback_path>?token=... from the OAuth provider.
func (h *Handler) Callback(c *gin.Context) {
	rawURL := "http://" + c.Request.Host + c.Request.URL.RequestURI()

	err := h.session.HandleRedirect(c.Request.Context(), rawURL)
	if errors.Is(err, session.ErrMissingToken) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	if err != nil {
		log.Printf("Error completing sign-in: %v", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to save session"})
		return
	}

	c.String(http.StatusOK, "Signed in to ParkinGo. You can close this window.")
	h.once.Do(func() { close(h.done) })
}

// Health handles GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
