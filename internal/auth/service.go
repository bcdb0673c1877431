package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/abduss/tasktrack/internal/config"
	"github.com/abduss/tasktrack/internal/validation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const minPasswordLength = 6

// userStore abstracts the credential store.
type userStore interface {
	CreateUser(ctx context.Context, email, passwordHash, name string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (User, error)
	FindUserByRefreshToken(ctx context.Context, token string) (User, error)
	SetRefreshToken(ctx context.Context, userID uuid.UUID, token *string) error
}

// Service encapsulates authentication use cases.
type Service struct {
	store  userStore
	hasher *PasswordHasher
	codec  *TokenCodec
	log    *zap.Logger
}

// NewService creates a Service with dependencies.
func NewService(store userStore, cfg config.AuthConfig, log *zap.Logger) (*Service, error) {
	hasher, err := NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:  store,
		hasher: hasher,
		codec:  NewTokenCodec(cfg),
		log:    log.Named("auth"),
	}, nil
}

// RegisterInput carries data for user registration.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// LoginInput carries login credentials.
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult contains the profile and a fresh token pair.
type LoginResult struct {
	User   Profile
	Tokens TokenPair
}

// RefreshResult contains a newly minted access token.
type RefreshResult struct {
	AccessToken       string
	AccessTokenExpiry time.Time
}

// Register creates a new user and returns its public profile. No tokens are issued.
func (s *Service) Register(ctx context.Context, input RegisterInput) (Profile, error) {
	email := normalizeEmail(input.Email)
	name := strings.TrimSpace(input.Name)

	if err := validateRegistration(email, input.Password, name); err != nil {
		return Profile{}, err
	}

	if _, err := s.store.FindUserByEmail(ctx, email); err == nil {
		return Profile{}, ErrEmailAlreadyExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return Profile{}, fmt.Errorf("check email: %w", err)
	}

	hashed, err := s.hasher.Hash(input.Password)
	if err != nil {
		return Profile{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, email, hashed, name)
	if err != nil {
		if errors.Is(err, ErrEmailAlreadyExists) {
			return Profile{}, ErrEmailAlreadyExists
		}
		return Profile{}, fmt.Errorf("create user: %w", err)
	}

	s.log.Info("user registered", zap.String("user_id", user.ID.String()))
	return user.Profile(), nil
}

// Login authenticates credentials and issues a fresh token pair. The stored
// refresh token is overwritten, which invalidates any earlier one.
func (s *Service) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	email := normalizeEmail(input.Email)

	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.hasher.VerifyDummy(input.Password)
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("find user: %w", err)
	}

	if !s.hasher.Verify(input.Password, user.PasswordHash) {
		return LoginResult{}, ErrInvalidCredentials
	}

	identity := Identity{UserID: user.ID, Email: user.Email}

	access, accessExpiry, err := s.codec.IssueAccess(identity)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshExpiry, err := s.codec.IssueRefresh(identity)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue refresh token: %w", err)
	}

	if err := s.store.SetRefreshToken(ctx, user.ID, &refresh); err != nil {
		return LoginResult{}, fmt.Errorf("store refresh token: %w", err)
	}

	return LoginResult{
		User: user.Profile(),
		Tokens: TokenPair{
			AccessToken:        access,
			AccessTokenExpiry:  accessExpiry,
			RefreshToken:       refresh,
			RefreshTokenExpiry: refreshExpiry,
		},
	}, nil
}

// Refresh exchanges a refresh token for a new access token. The token must both
// verify and still be the user's current stored token; the refresh token itself
// is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	if _, err := s.codec.VerifyRefresh(refreshToken); err != nil {
		s.log.Debug("refresh token rejected by codec", zap.Error(err))
		return RefreshResult{}, ErrInvalidRefreshToken
	}

	user, err := s.store.FindUserByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return RefreshResult{}, ErrInvalidRefreshToken
		}
		return RefreshResult{}, fmt.Errorf("find refresh token owner: %w", err)
	}

	access, expiry, err := s.codec.IssueAccess(Identity{UserID: user.ID, Email: user.Email})
	if err != nil {
		return RefreshResult{}, fmt.Errorf("issue access token: %w", err)
	}

	return RefreshResult{AccessToken: access, AccessTokenExpiry: expiry}, nil
}

// Logout clears the user's stored refresh token.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) error {
	err := s.store.SetRefreshToken(ctx, userID, nil)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

// Profile returns the public profile of userID.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (Profile, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	profile := user.Profile()
	updated := user.UpdatedAt
	profile.UpdatedAt = &updated
	return profile, nil
}

// ValidateAccessToken verifies an access token for the request gate.
func (s *Service) ValidateAccessToken(token string) (TokenPayload, error) {
	return s.codec.VerifyAccess(token)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegistration(email, password, name string) error {
	verr := &validation.Error{}
	if !validation.IsEmail(email) {
		verr.Add("email", "Invalid email format")
	}
	// the upper bound is bcrypt's, in bytes
	if utf8.RuneCountInString(password) < minPasswordLength {
		verr.Add("password", fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	} else if len(password) > maxPasswordLength {
		verr.Add("password", fmt.Sprintf("Password must be at most %d bytes", maxPasswordLength))
	}
	if name == "" {
		verr.Add("name", "Name is required")
	}
	return verr.OrNil()
}
