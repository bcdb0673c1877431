package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abduss/tasktrack/internal/client"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAccessToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "u1",
		"email": "a@b.com",
		"exp":   time.Now().Add(15 * time.Minute).Unix(),
	}).SignedString([]byte("access-secret"))
	require.NoError(t, err)
	return token
}

func newFakeServer(t *testing.T, access string) *httptest.Server {
	t.Helper()
	reply := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["password"] != "secret1" {
			reply(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
			return
		}
		reply(w, http.StatusOK, map[string]any{
			"user":         map[string]string{"id": "u1", "email": req["email"], "name": "Al"},
			"accessToken":  access,
			"refreshToken": "refresh",
		})
	})
	mux.HandleFunc("/api/tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+access {
			reply(w, http.StatusUnauthorized, map[string]string{"error": "Invalid or expired token"})
			return
		}
		assert.Equal(t, "COMPLETED", r.URL.Query().Get("status"))
		reply(w, http.StatusOK, map[string]any{
			"tasks": []map[string]string{{"id": "t1", "title": "write report", "status": "COMPLETED"}},
			"pagination": map[string]any{
				"page": 1, "limit": 10, "total": 1, "totalPages": 1,
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(srv *httptest.Server, stdin string) (*app, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &app{
		session: client.New(srv.URL+"/api", client.NewMemoryStore()),
		out:     out,
		in:      strings.NewReader(stdin),
		retry:   client.RetryOptions{Base: time.Millisecond, MaxRetries: client.Retries(1)},
	}, out
}

func TestLoginThenListTasks(t *testing.T) {
	access := testAccessToken(t)
	a, out := newTestApp(newFakeServer(t, access), "secret1\n")
	ctx := context.Background()

	require.NoError(t, a.run(ctx, []string{"login", "-email", "a@b.com"}))
	assert.Contains(t, out.String(), "Logged in as Al.")

	out.Reset()
	require.NoError(t, a.run(ctx, []string{"status"}))
	assert.Contains(t, out.String(), "Logged in as a@b.com, access token valid")

	out.Reset()
	require.NoError(t, a.run(ctx, []string{"tasks", "list", "-status", "COMPLETED"}))
	assert.Contains(t, out.String(), "write report")
	assert.Contains(t, out.String(), "page 1/1, 1 total")
}

func TestLoginWithWrongPassword(t *testing.T) {
	a, _ := newTestApp(newFakeServer(t, testAccessToken(t)), "nope")

	err := a.run(context.Background(), []string{"login", "-email", "a@b.com"})

	require.Error(t, err)
	assert.True(t, client.IsStatus(err, http.StatusUnauthorized))
	assert.False(t, a.session.Authenticated())
}

func TestRunRejectsBadInvocations(t *testing.T) {
	a, out := newTestApp(newFakeServer(t, testAccessToken(t)), "")
	ctx := context.Background()

	assert.Error(t, a.run(ctx, []string{"bogus"}))
	assert.Error(t, a.run(ctx, []string{"tasks"}))
	assert.Error(t, a.run(ctx, []string{"tasks", "rm"}))
	assert.Error(t, a.run(ctx, []string{"tasks", "bulk", "-status", "COMPLETED"}))
	assert.Error(t, a.run(ctx, []string{"login"}))

	require.NoError(t, a.run(ctx, []string{"status"}))
	assert.Contains(t, out.String(), "Not logged in.")
}
