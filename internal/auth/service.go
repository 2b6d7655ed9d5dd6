package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service orchestrates the session lifecycle over the Store and TokenIssuer.
type Service struct {
	store   Store
	tokens  *TokenIssuer
	lockout LockoutPolicy
	now     func() time.Time
}

func NewService(store Store, tokens *TokenIssuer) *Service {
	return &Service{
		store:   store,
		tokens:  tokens,
		lockout: DefaultLockoutPolicy(),
		now:     time.Now,
	}
}

func (s *Service) WithLockoutPolicy(policy LockoutPolicy) {
	if policy.MaxAttempts > 0 && policy.LockDuration > 0 {
		s.lockout = policy
	}
}

// WithNowFunc overrides the clock, primarily for tests.
func (s *Service) WithNowFunc(now func() time.Time) {
	s.now = now
}

func (s *Service) Register(ctx context.Context, name, email, password string) (UserSummary, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return UserSummary{}, fmt.Errorf("generate user id: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return UserSummary{}, err
	}

	user := User{
		ID:           id.String(),
		Name:         strings.TrimSpace(name),
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		Role:         RoleUser,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return UserSummary{}, err
	}

	return user.Summary(), nil
}

// Login verifies credentials under the lockout policy and, on success,
// rotates the refresh credential: every prior refresh record for the user is
// replaced by exactly one new record, so a second login anywhere invalidates
// the first session.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = normalizeEmail(email)
	now := s.now().UTC()

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	state := LockState{FailedAttempts: user.FailedLoginAttempts, LockedUntil: user.LockedUntil}
	if s.lockout.IsLocked(state, now) {
		return LoginResult{}, ErrAccountLocked{Until: *user.LockedUntil}
	}

	if !VerifyPassword(password, user.PasswordHash) {
		// The failing attempt itself reports bad credentials even when it
		// trips the lock; the lock surfaces on the next attempt.
		if _, err := s.store.RegisterFailedAttempt(ctx, user.ID, s.lockout, now); err != nil {
			return LoginResult{}, err
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := s.store.ResetLockState(ctx, user.ID); err != nil {
		return LoginResult{}, err
	}

	refreshToken, refreshExpiry, err := s.rotateOnLogin(ctx, user.ID, now)
	if err != nil {
		return LoginResult{}, err
	}

	accessToken, err := s.tokens.IssueAccessToken(user.ID, user.Role)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiry,
		User:             user.Summary(),
	}, nil
}

func (s *Service) rotateOnLogin(ctx context.Context, userID string, now time.Time) (string, time.Time, error) {
	refreshToken, expiresAt, err := s.tokens.IssueRefreshToken(userID)
	if err != nil {
		return "", time.Time{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate refresh token id: %w", err)
	}

	record := RefreshTokenRecord{
		ID:        id.String(),
		UserID:    userID,
		TokenHash: HashTokenValue(refreshToken),
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := s.store.ReplaceRefreshTokens(ctx, record); err != nil {
		return "", time.Time{}, err
	}

	return refreshToken, expiresAt, nil
}

// Refresh exchanges a presented refresh credential for a new access token.
// A credential is honored only if its signature verifies, an unexpired store
// record matches it, and the owning user still exists; the role is re-read
// from the store so a downgrade takes effect immediately. The refresh record
// itself is left untouched.
func (s *Service) Refresh(ctx context.Context, presented string) (string, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return "", ErrMissingToken
	}

	userID, err := s.tokens.VerifyRefreshToken(presented)
	if err != nil {
		return "", err
	}

	record, err := s.store.GetRefreshToken(ctx, HashTokenValue(presented))
	if err != nil {
		return "", err
	}
	if record.UserID != userID {
		return "", ErrTokenInvalid
	}
	if !record.ExpiresAt.After(s.now().UTC()) {
		return "", ErrTokenExpired
	}

	user, err := s.store.GetUserByID(ctx, record.UserID)
	if err != nil {
		return "", err
	}

	return s.tokens.IssueAccessToken(user.ID, user.Role)
}

// Logout revokes the presented refresh credential. An empty or unknown value
// is not an error: the cookie is cleared either way.
func (s *Service) Logout(ctx context.Context, presented string) error {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return nil
	}

	return s.store.DeleteRefreshToken(ctx, HashTokenValue(presented))
}

// RevokeUserSessions drops every refresh credential owned by the user, e.g.
// when an administrator removes the account.
func (s *Service) RevokeUserSessions(ctx context.Context, userID string) error {
	return s.store.DeleteRefreshTokensForUser(ctx, userID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
