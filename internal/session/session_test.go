package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkingo-client/internal/model"
	"parkingo-client/internal/store"
)

// mockStore is an in-memory store.Store.
type mockStore struct {
	token   string
	saveErr error
	deletes int
}

func (m *mockStore) LoadToken(ctx context.Context) (string, error) {
	if m.token == "" {
		return "", store.ErrNoToken
	}
	return m.token, nil
}

func (m *mockStore) SaveToken(ctx context.Context, token string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.token = token
	return nil
}

func (m *mockStore) DeleteToken(ctx context.Context) error {
	m.deletes++
	m.token = ""
	return nil
}

// mockAPI answers Me for one good token.
type mockAPI struct {
	goodToken string
	err       error
	calls     int
}

func (m *mockAPI) AuthenticateURL(ctx context.Context, redirectURL string) (string, error) {
	return "https://accounts.example/auth?next=" + redirectURL, nil
}

func (m *mockAPI) Me(ctx context.Context, token string) (*model.User, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if token != m.goodToken {
		return nil, errors.New("401")
	}
	return &model.User{ID: 1, Username: "rina"}, nil
}

func TestSession_Restore(t *testing.T) {
	s := New(&mockStore{}, &mockAPI{})
	require.NoError(t, s.Restore(context.Background()))
	assert.False(t, s.Authenticated())

	s = New(&mockStore{token: "saved"}, &mockAPI{})
	require.NoError(t, s.Restore(context.Background()))
	assert.True(t, s.Authenticated())
	assert.Equal(t, "saved", s.Token())
}

func TestSession_HandleRedirect(t *testing.T) {
	testCases := []struct {
		name        string
		url         string
		expectedErr error
		token       string
	}{
		{name: "token present", url: "http://127.0.0.1:8765/auth/callback?token=abc", token: "abc"},
		{name: "token among other params", url: "parkingo://?state=x&token=xyz", token: "xyz"},
		{name: "no token", url: "http://127.0.0.1:8765/auth/callback?state=x", expectedErr: ErrMissingToken},
		{name: "empty token", url: "http://127.0.0.1:8765/auth/callback?token=", expectedErr: ErrMissingToken},
		{name: "unparseable", url: "http://[::1", expectedErr: ErrMissingToken},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			st := &mockStore{}
			s := New(st, &mockAPI{})

			err := s.HandleRedirect(context.Background(), tc.url)

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				assert.False(t, s.Authenticated())
				assert.Empty(t, st.token)
				return
			}
			require.NoError(t, err)
			assert.True(t, s.Authenticated())
			assert.Equal(t, tc.token, s.Token())
			assert.Equal(t, tc.token, st.token, "token is persisted")
		})
	}
}

func TestSession_HandleRedirectSaveFails(t *testing.T) {
	s := New(&mockStore{saveErr: errors.New("disk full")}, &mockAPI{})

	err := s.HandleRedirect(context.Background(), "http://localhost/cb?token=abc")
	assert.Error(t, err)
	assert.False(t, s.Authenticated())
}

func TestSession_Validate(t *testing.T) {
	st := &mockStore{token: "good"}
	api := &mockAPI{goodToken: "good"}
	s := New(st, api)
	require.NoError(t, s.Restore(context.Background()))

	user, err := s.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rina", user.Username)
	assert.Equal(t, user, s.User())
	assert.Zero(t, st.deletes)
}

func TestSession_ValidateFailureLogsOut(t *testing.T) {
	testCases := []struct {
		name string
		api  *mockAPI
	}{
		{name: "rejected token", api: &mockAPI{goodToken: "other"}},
		{name: "network failure", api: &mockAPI{err: errors.New("dial tcp: connection refused")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			st := &mockStore{token: "stale"}
			s := New(st, tc.api)
			require.NoError(t, s.Restore(context.Background()))

			_, err := s.Validate(context.Background())
			assert.ErrorIs(t, err, ErrAuthFailure)
			assert.False(t, s.Authenticated())
			assert.Nil(t, s.User())
			assert.Equal(t, 1, st.deletes)
			assert.Empty(t, st.token)
		})
	}
}

func TestSession_ValidateWithoutToken(t *testing.T) {
	api := &mockAPI{}
	s := New(&mockStore{}, api)

	_, err := s.Validate(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Zero(t, api.calls)
}

func TestSession_Logout(t *testing.T) {
	st := &mockStore{}
	s := New(st, &mockAPI{goodToken: "abc"})
	require.NoError(t, s.HandleRedirect(context.Background(), "http://localhost/cb?token=abc"))
	_, err := s.Validate(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Logout(context.Background()))
	assert.False(t, s.Authenticated())
	assert.Nil(t, s.User())
	assert.Empty(t, st.token)
}

func TestSession_SignInURL(t *testing.T) {
	s := New(&mockStore{}, &mockAPI{})

	u, err := s.SignInURL(context.Background(), "http://127.0.0.1:8765/auth/callback")
	require.NoError(t, err)
	assert.Contains(t, u, "next=http://127.0.0.1:8765/auth/callback")
}
