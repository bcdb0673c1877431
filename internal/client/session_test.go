package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// fakeAPI accepts only the access token "fresh" and refreshes "good-refresh".
type fakeAPI struct {
	refreshCalls atomic.Int32
	statsCalls   atomic.Int32
	refreshDelay time.Duration
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		time.Sleep(f.refreshDelay)

		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.RefreshToken != "good-refresh" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid refresh token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": "fresh"})
	})
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "secret1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user":         map[string]string{"id": "u1", "email": req.Email, "name": "Al"},
			"accessToken":  "fresh",
			"refreshToken": "good-refresh",
		})
	})
	mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid or expired token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
	})
	mux.HandleFunc("/api/tasks/stats", func(w http.ResponseWriter, r *http.Request) {
		f.statsCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid or expired token"})
			return
		}
		writeJSON(w, http.StatusOK, TaskStats{Completed: 1, Total: 1, CompletionRate: 100})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestSession(t *testing.T, api *fakeAPI, tokens Tokens, opts ...Option) (*Session, *MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	store := NewMemoryStore()
	require.NoError(t, store.Save(tokens))
	return New(srv.URL+"/api/", store, opts...), store
}

func TestConcurrentExpiredCallsShareOneRefresh(t *testing.T) {
	api := &fakeAPI{refreshDelay: 50 * time.Millisecond}
	session, store := newTestSession(t, api, Tokens{AccessToken: "expired", RefreshToken: "good-refresh"})

	var g errgroup.Group
	results := make([]TaskStats, 3)
	for i := range results {
		i := i
		g.Go(func() error {
			stats, err := session.TaskStats(context.Background())
			results[i] = stats
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), api.refreshCalls.Load())
	for _, stats := range results {
		assert.Equal(t, 1, stats.Completed)
	}

	tokens, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Tokens{AccessToken: "fresh", RefreshToken: "good-refresh"}, tokens)
}

func TestCancelledLeaderDoesNotDropSession(t *testing.T) {
	api := &fakeAPI{refreshDelay: 200 * time.Millisecond}
	var logouts atomic.Int32
	session, store := newTestSession(t, api,
		Tokens{AccessToken: "expired", RefreshToken: "good-refresh"},
		WithOnLogout(func() { logouts.Add(1) }),
	)

	leaderCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	leaderErr := make(chan error, 1)
	go func() {
		_, err := session.TaskStats(leaderCtx)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return api.refreshCalls.Load() == 1 }, time.Second, time.Millisecond)

	stats, err := session.TaskStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)
	assert.ErrorIs(t, <-leaderErr, context.DeadlineExceeded)

	assert.Equal(t, int32(1), api.refreshCalls.Load())
	assert.Equal(t, int32(0), logouts.Load())
	tokens, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Tokens{AccessToken: "fresh", RefreshToken: "good-refresh"}, tokens)
}

func TestFailedRefreshRejectsAllCallsAndLogsOut(t *testing.T) {
	api := &fakeAPI{refreshDelay: 50 * time.Millisecond}
	var logouts atomic.Int32
	session, store := newTestSession(t, api,
		Tokens{AccessToken: "expired", RefreshToken: "revoked"},
		WithOnLogout(func() { logouts.Add(1) }),
	)

	errs := make([]error, 3)
	var g errgroup.Group
	for i := range errs {
		i := i
		g.Go(func() error {
			_, errs[i] = session.TaskStats(context.Background())
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, err := range errs {
		assert.Error(t, err)
	}
	assert.Equal(t, int32(1), api.refreshCalls.Load())
	assert.GreaterOrEqual(t, logouts.Load(), int32(1))
	assert.False(t, session.Authenticated())

	tokens, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Tokens{}, tokens)
}

func TestCallIsRetriedAtMostOnce(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/auth/refresh" {
			api.refreshCalls.Add(1)
			writeJSON(w, http.StatusOK, map[string]string{"accessToken": "still-rejected"})
			return
		}
		api.statsCalls.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid or expired token"})
	}))
	defer srv.Close()

	store := NewMemoryStore()
	require.NoError(t, store.Save(Tokens{AccessToken: "expired", RefreshToken: "good-refresh"}))
	session := New(srv.URL+"/api", store)

	_, err := session.TaskStats(context.Background())

	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, int32(1), api.refreshCalls.Load())
	assert.Equal(t, int32(2), api.statsCalls.Load())
}

func TestAuthEndpointsDoNotTriggerRefresh(t *testing.T) {
	api := &fakeAPI{}
	session, _ := newTestSession(t, api, Tokens{AccessToken: "expired", RefreshToken: "good-refresh"})

	_, err := session.Login(context.Background(), "a@b.com", "wrong")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Invalid credentials", apiErr.Message)
	assert.Equal(t, int32(0), api.refreshCalls.Load())
}

func TestLoginStoresTokensAndLogoutClears(t *testing.T) {
	api := &fakeAPI{}
	var logouts atomic.Int32
	session, store := newTestSession(t, api, Tokens{}, WithOnLogout(func() { logouts.Add(1) }))
	ctx := context.Background()

	require.False(t, session.Authenticated())

	user, err := session.Login(ctx, "a@b.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", user.Email)
	assert.True(t, session.Authenticated())

	stats, err := session.TaskStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, stats.CompletionRate)
	assert.Equal(t, int32(0), api.refreshCalls.Load())

	require.NoError(t, session.Logout(ctx))
	assert.False(t, session.Authenticated())
	assert.Equal(t, int32(1), logouts.Load())

	tokens, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, tokens.RefreshToken)
}

func TestRefreshWithoutStoredTokenFailsImmediately(t *testing.T) {
	api := &fakeAPI{}
	session, _ := newTestSession(t, api, Tokens{})

	err := session.Refresh(context.Background())

	assert.ErrorIs(t, err, ErrNoRefreshToken)
	assert.Equal(t, int32(0), api.refreshCalls.Load())
}

func TestLogoutAfterFailedRefreshNotifiesOnce(t *testing.T) {
	api := &fakeAPI{}
	var logouts atomic.Int32
	session, store := newTestSession(t, api,
		Tokens{AccessToken: "expired", RefreshToken: "revoked"},
		WithOnLogout(func() { logouts.Add(1) }),
	)

	require.NoError(t, session.Logout(context.Background()))

	assert.Equal(t, int32(1), api.refreshCalls.Load())
	assert.Equal(t, int32(1), logouts.Load())
	tokens, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Tokens{}, tokens)
}

func TestProfileWithoutSession(t *testing.T) {
	api := &fakeAPI{}
	session, _ := newTestSession(t, api, Tokens{})

	_, err := session.Profile(context.Background())

	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, int32(0), api.refreshCalls.Load())
}
