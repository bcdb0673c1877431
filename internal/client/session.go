// Package client is the API client used by taskctl. Session attaches the
// stored access token to every call and renews it transparently: when several
// calls observe an expired token at once, exactly one refresh is sent and the
// others wait for its outcome.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20
)

var authPaths = []string{"/auth/login", "/auth/register", "/auth/refresh"}

// Option configures a Session.
type Option func(*Session)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.http = c }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.http.Timeout = d }
}

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithOnLogout registers a hook run whenever the session is dropped, either
// explicitly or after an unrecoverable refresh failure.
func WithOnLogout(fn func()) Option {
	return func(s *Session) { s.onLogout = fn }
}

type refreshOutcome struct {
	token string
	err   error
}

// Session is an authenticated API client. It is safe for concurrent use.
type Session struct {
	baseURL  string
	http     *http.Client
	store    TokenStore
	log      *zap.Logger
	onLogout func()

	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshOutcome
}

// New creates a Session talking to baseURL (e.g. http://localhost:3001/api).
func New(baseURL string, store TokenStore, opts ...Option) *Session {
	s := &Session{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		store:   store,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Do sends a JSON request and decodes a successful response into out (which
// may be nil). A 401 on a non-auth path triggers one token refresh and a
// single retry of the call.
func (s *Session) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	tokens, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	status, data, err := s.send(ctx, method, path, payload, tokens.AccessToken)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && !isAuthPath(path) {
		token, err := s.renew(ctx, tokens.AccessToken)
		if err != nil {
			return err
		}
		status, data, err = s.send(ctx, method, path, payload, token)
		if err != nil {
			return err
		}
	}

	return decode(status, data, out)
}

// renew returns an access token newer than stale, refreshing at most once
// across all concurrent callers.
func (s *Session) renew(ctx context.Context, stale string) (string, error) {
	s.mu.Lock()
	tokens, err := s.store.Load()
	if err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("load session: %w", err)
	}
	// another caller already replaced the token that failed
	if tokens.AccessToken != "" && tokens.AccessToken != stale {
		s.mu.Unlock()
		return tokens.AccessToken, nil
	}

	if s.refreshing {
		ch := make(chan refreshOutcome, 1)
		s.waiters = append(s.waiters, ch)
		s.mu.Unlock()

		select {
		case outcome := <-ch:
			return outcome.token, outcome.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	s.refreshing = true
	s.mu.Unlock()

	// followers depend on this outcome, so the leader's cancellation must not
	// turn into a logout; the client timeout still bounds the call
	token, err := s.refresh(context.WithoutCancel(ctx), tokens.RefreshToken)
	if err != nil {
		s.log.Info("session refresh failed, logging out", zap.Error(err))
		if clearErr := s.store.Clear(); clearErr != nil {
			s.log.Warn("clear session", zap.Error(clearErr))
		}
	}

	s.mu.Lock()
	waiters := s.waiters
	s.waiters = nil
	s.refreshing = false
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- refreshOutcome{token: token, err: err}
	}

	if err != nil {
		s.loggedOut()
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *Session) refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return "", fmt.Errorf("encode refresh: %w", err)
	}

	status, data, err := s.send(ctx, http.MethodPost, "/auth/refresh", payload, "")
	if err != nil {
		return "", err
	}

	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	if err := decode(status, data, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", errors.New("refresh response missing access token")
	}

	if err := s.store.SetAccessToken(resp.AccessToken); err != nil {
		return "", fmt.Errorf("store access token: %w", err)
	}
	return resp.AccessToken, nil
}

func (s *Session) send(ctx context.Context, method, path string, payload []byte, token string) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, &NetworkError{Err: err}
	}

	s.log.Debug("api call", zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))
	return resp.StatusCode, data, nil
}

func (s *Session) loggedOut() {
	if s.onLogout != nil {
		s.onLogout()
	}
}

func decode(status int, data []byte, out any) error {
	if status < 200 || status >= 300 {
		return newAPIError(status, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isAuthPath(path string) bool {
	for _, p := range authPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Authenticated reports whether an access token is stored.
func (s *Session) Authenticated() bool {
	return s.AccessToken() != ""
}

// AccessToken returns the stored access token, or "".
func (s *Session) AccessToken() string {
	tokens, err := s.store.Load()
	if err != nil {
		return ""
	}
	return tokens.AccessToken
}

// AccessClaims decodes the stored access token without verifying it.
func (s *Session) AccessClaims() (TokenClaims, bool) {
	token := s.AccessToken()
	if token == "" {
		return TokenClaims{}, false
	}
	return ParseClaims(token)
}

// Register creates an account. It does not log in.
func (s *Session) Register(ctx context.Context, email, password, name string) (User, error) {
	var resp struct {
		User User `json:"user"`
	}
	err := s.Do(ctx, http.MethodPost, "/auth/register", map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	}, &resp)
	return resp.User, err
}

// Login authenticates and stores the returned token pair.
func (s *Session) Login(ctx context.Context, email, password string) (User, error) {
	var resp struct {
		User         User   `json:"user"`
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	err := s.Do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return User{}, err
	}

	if err := s.store.Save(Tokens{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}); err != nil {
		return User{}, fmt.Errorf("store session: %w", err)
	}
	return resp.User, nil
}

// Refresh forces a token refresh, coordinated with any in-flight one.
func (s *Session) Refresh(ctx context.Context) error {
	tokens, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	_, err = s.renew(ctx, tokens.AccessToken)
	return err
}

// Logout revokes the server-side refresh token and always clears the local
// session. The logout hook runs once, even when a failed refresh during the
// server call already dropped the session.
func (s *Session) Logout(ctx context.Context) error {
	if s.Authenticated() {
		if err := s.Do(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
			s.log.Debug("server logout failed", zap.Error(err))
			if !s.Authenticated() {
				return nil
			}
		}
	}
	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.loggedOut()
	return nil
}

// Profile returns the current user, or ErrNotAuthenticated without calling the
// server when no session is stored.
func (s *Session) Profile(ctx context.Context) (User, error) {
	if !s.Authenticated() {
		return User{}, ErrNotAuthenticated
	}
	var resp struct {
		User User `json:"user"`
	}
	err := s.Do(ctx, http.MethodGet, "/auth/me", nil, &resp)
	return resp.User, err
}

// ListTasks returns one page of the user's tasks.
func (s *Session) ListTasks(ctx context.Context, q TaskQuery) (TaskPage, error) {
	params := url.Values{}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}

	path := "/tasks"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var page TaskPage
	err := s.Do(ctx, http.MethodGet, path, nil, &page)
	return page, err
}

// CreateTask creates a task.
func (s *Session) CreateTask(ctx context.Context, input TaskInput) (Task, error) {
	return s.taskCall(ctx, http.MethodPost, "/tasks", input)
}

// UpdateTask patches a task.
func (s *Session) UpdateTask(ctx context.Context, id string, input TaskInput) (Task, error) {
	return s.taskCall(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(id), input)
}

// ToggleTask flips a task between completed and pending.
func (s *Session) ToggleTask(ctx context.Context, id string) (Task, error) {
	return s.taskCall(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/toggle", nil)
}

// GetTask fetches one task.
func (s *Session) GetTask(ctx context.Context, id string) (Task, error) {
	return s.taskCall(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil)
}

// DeleteTask removes a task.
func (s *Session) DeleteTask(ctx context.Context, id string) error {
	return s.Do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

// BulkUpdateStatus moves several tasks to status and returns how many changed.
func (s *Session) BulkUpdateStatus(ctx context.Context, ids []string, status string) (int, error) {
	var resp struct {
		Updated int `json:"updated"`
	}
	err := s.Do(ctx, http.MethodPatch, "/tasks/bulk-status", map[string]any{
		"taskIds": ids,
		"status":  status,
	}, &resp)
	return resp.Updated, err
}

// TaskStats returns per-status counts.
func (s *Session) TaskStats(ctx context.Context) (TaskStats, error) {
	var stats TaskStats
	err := s.Do(ctx, http.MethodGet, "/tasks/stats", nil, &stats)
	return stats, err
}

func (s *Session) taskCall(ctx context.Context, method, path string, body any) (Task, error) {
	var resp struct {
		Task Task `json:"task"`
	}
	err := s.Do(ctx, method, path, body, &resp)
	return resp.Task, err
}
