package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"

	"parkingo-client/internal/model"
	"parkingo-client/internal/store"
)

var (
	// ErrAuthFailure means the stored token could not be validated. The session is logged out.
	ErrAuthFailure = errors.New("session: authentication failed")

	// ErrMissingToken is returned for a redirect that does not carry a token parameter.
	ErrMissingToken = errors.New("session: redirect carries no token")

	// ErrNotAuthenticated is returned by operations that need a token when none is held.
	ErrNotAuthenticated = errors.New("session: not authenticated")
)

// API is the subset of the remote client the session needs.
type API interface {
	AuthenticateURL(ctx context.Context, redirectURL string) (string, error)
	Me(ctx context.Context, token string) (*model.User, error)
}

// Session holds the authenticated token and user. It is safe for concurrent use.
type Session struct {
	store store.Store
	api   API

	mu    sync.RWMutex
	token string
	user  *model.User
}

// New creates an unauthenticated session.
func New(st store.Store, api API) *Session {
	return &Session{store: st, api: api}
}

// Restore loads a previously persisted token. Having none is not an error.
func (s *Session) Restore(ctx context.Context) error {
	token, err := s.store.LoadToken(ctx)
	if errors.Is(err, store.ErrNoToken) {
		return nil
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	log.Println("Restored saved session token")
	return nil
}

// SignInURL asks the API for the OAuth URL that will redirect to redirectURL.
func (s *Session) SignInURL(ctx context.Context, redirectURL string) (string, error) {
	return s.api.AuthenticateURL(ctx, redirectURL)
}

// HandleRedirect completes sign-in from the OAuth redirect. A token query
// parameter is required; when present it is persisted and the session becomes
// authenticated.
func (s *Session) HandleRedirect(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingToken, err)
	}
	token := u.Query().Get("token")
	if token == "" {
		return ErrMissingToken
	}

	if err := s.store.SaveToken(ctx, token); err != nil {
		return err
	}

	s.mu.Lock()
	s.token = token
	s.user = nil
	s.mu.Unlock()
	log.Println("Sign-in redirect received, session authenticated")
	return nil
}

// Validate fetches the current user with the held token. Any failure logs the
// session out and returns ErrAuthFailure.
func (s *Session) Validate(ctx context.Context) (*model.User, error) {
	token := s.Token()
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	user, err := s.api.Me(ctx, token)
	if err != nil {
		log.Printf("Session validation failed, logging out: %v", err)
		if logoutErr := s.Logout(ctx); logoutErr != nil {
			log.Printf("Warning: logout after failed validation: %v", logoutErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}

	s.mu.Lock()
	if s.token == token {
		s.user = user
	}
	s.mu.Unlock()
	return user, nil
}

// Logout clears the in-memory session and deletes the persisted token.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	return s.store.DeleteToken(ctx)
}

// Token returns the held token, or "" when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the last validated user.
func (s *Session) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Authenticated reports whether a token is held.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}
