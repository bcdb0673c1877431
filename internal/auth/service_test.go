package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/abduss/tasktrack/internal/validation"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	service, err := NewService(store, testAuthConfig(), nil)
	require.NoError(t, err)
	return service, store
}

func registerAndLogin(t *testing.T, service *Service) LoginResult {
	t.Helper()
	ctx := context.Background()
	_, err := service.Register(ctx, RegisterInput{Email: "a@b.com", Password: "secret1", Name: "Alice"})
	require.NoError(t, err)
	result, err := service.Login(ctx, LoginInput{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	return result
}

func TestRegisterSuccess(t *testing.T) {
	service, store := newTestService(t)

	profile, err := service.Register(context.Background(), RegisterInput{
		Email:    "  User@Example.COM ",
		Password: "secret1",
		Name:     " Alice ",
	})
	require.NoError(t, err)

	assert.Equal(t, "user@example.com", profile.Email)
	assert.Equal(t, "Alice", profile.Name)
	assert.NotEqual(t, uuid.Nil, profile.ID)

	stored := store.users["user@example.com"]
	assert.NotEqual(t, "secret1", stored.PasswordHash)
	assert.Nil(t, stored.RefreshToken)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	_, err := service.Register(ctx, RegisterInput{Email: "a@b.com", Password: "secret1", Name: "Alice"})
	require.NoError(t, err)

	_, err = service.Register(ctx, RegisterInput{Email: "A@B.com", Password: "another1", Name: "Bob"})
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)
}

func TestRegisterValidation(t *testing.T) {
	service, store := newTestService(t)

	_, err := service.Register(context.Background(), RegisterInput{Email: "nope", Password: "123", Name: "   "})
	require.Error(t, err)

	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		fields = append(fields, f.Field)
	}
	assert.ElementsMatch(t, []string{"email", "password", "name"}, fields)
	assert.Empty(t, store.users)
}

func TestRegisterAcceptsSingleCharacterName(t *testing.T) {
	service, _ := newTestService(t)

	profile, err := service.Register(context.Background(), RegisterInput{Email: "a@b.com", Password: "secret1", Name: "A"})

	require.NoError(t, err)
	assert.Equal(t, "A", profile.Name)
}

func TestRegisterCountsPasswordCharactersNotBytes(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	// three runes, six bytes
	_, err := service.Register(ctx, RegisterInput{Email: "a@b.com", Password: "äöü", Name: "A"})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "password", verr.Fields[0].Field)

	_, err = service.Register(ctx, RegisterInput{Email: "a@b.com", Password: "äöüäöü", Name: "A"})
	require.NoError(t, err)
}

func TestLoginIssuesTokensAndStoresRefresh(t *testing.T) {
	service, store := newTestService(t)

	result := registerAndLogin(t, service)

	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotEmpty(t, result.Tokens.RefreshToken)
	assert.Equal(t, "a@b.com", result.User.Email)

	stored := store.users["a@b.com"]
	require.NotNil(t, stored.RefreshToken)
	assert.Equal(t, result.Tokens.RefreshToken, *stored.RefreshToken)

	payload, err := service.ValidateAccessToken(result.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, payload.UserID)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	service, _ := newTestService(t)
	registerAndLogin(t, service)
	ctx := context.Background()

	_, wrongPassword := service.Login(ctx, LoginInput{Email: "a@b.com", Password: "wrong"})
	_, unknownEmail := service.Login(ctx, LoginInput{Email: "nobody@b.com", Password: "secret1"})

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestRefreshReturnsNewAccessToken(t *testing.T) {
	service, store := newTestService(t)
	login := registerAndLogin(t, service)

	result, err := service.Refresh(context.Background(), login.Tokens.RefreshToken)
	require.NoError(t, err)

	payload, err := service.ValidateAccessToken(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, login.User.ID, payload.UserID)

	// the refresh token is not rotated
	assert.Equal(t, login.Tokens.RefreshToken, *store.users["a@b.com"].RefreshToken)
	_, err = service.Refresh(context.Background(), login.Tokens.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	service, _ := newTestService(t)
	login := registerAndLogin(t, service)

	_, err := service.Refresh(context.Background(), login.Tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefreshAfterLogoutFails(t *testing.T) {
	service, _ := newTestService(t)
	login := registerAndLogin(t, service)
	ctx := context.Background()

	require.NoError(t, service.Logout(ctx, login.User.ID))

	_, err := service.Refresh(ctx, login.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// logout is idempotent
	assert.NoError(t, service.Logout(ctx, login.User.ID))
}

func TestSecondLoginRevokesFirstRefreshToken(t *testing.T) {
	service, _ := newTestService(t)
	first := registerAndLogin(t, service)
	ctx := context.Background()

	second, err := service.Login(ctx, LoginInput{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	require.NotEqual(t, first.Tokens.RefreshToken, second.Tokens.RefreshToken)

	_, err = service.Refresh(ctx, first.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = service.Refresh(ctx, second.Tokens.RefreshToken)
	assert.NoError(t, err)
}

func TestProfile(t *testing.T) {
	service, _ := newTestService(t)
	login := registerAndLogin(t, service)

	profile, err := service.Profile(context.Background(), login.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.Name)
	require.NotNil(t, profile.UpdatedAt)

	_, err = service.Profile(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

// memoryStore implements userStore for tests.
type memoryStore struct {
	mu    sync.Mutex
	users map[string]User
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[string]User)}
}

func (m *memoryStore) CreateUser(_ context.Context, email, passwordHash, name string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[email]; ok {
		return User{}, ErrEmailAlreadyExists
	}
	now := time.Now()
	user := User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[email] = user
	return user, nil
}

func (m *memoryStore) FindUserByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (m *memoryStore) FindUserByID(_ context.Context, id uuid.UUID) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (m *memoryStore) FindUserByRefreshToken(_ context.Context, token string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.RefreshToken != nil && *user.RefreshToken == token {
			return user, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (m *memoryStore) SetRefreshToken(_ context.Context, userID uuid.UUID, token *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for email, user := range m.users {
		if user.ID == userID {
			if token != nil {
				t := *token
				token = &t
			}
			user.RefreshToken = token
			user.UpdatedAt = time.Now()
			m.users[email] = user
			return nil
		}
	}
	return ErrUserNotFound
}
