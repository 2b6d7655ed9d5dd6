package auth

import (
	"context"
	"time"
)

// Store is the persistence collaborator for the session lifecycle: user
// records plus refresh-token records, with atomic point lookups and updates.
type Store interface {
	CreateUser(ctx context.Context, user User) error
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)

	// RegisterFailedAttempt applies the lockout policy to the user's counter
	// inside a single atomic read-modify-write, so concurrent failures never
	// lose updates.
	RegisterFailedAttempt(ctx context.Context, userID string, policy LockoutPolicy, now time.Time) (LockState, error)
	ResetLockState(ctx context.Context, userID string) error

	// ReplaceRefreshTokens deletes every refresh record for the owning user
	// and inserts the given one as a single atomic unit. This is what keeps
	// "at most one live refresh credential per user" true under concurrent
	// logins.
	ReplaceRefreshTokens(ctx context.Context, record RefreshTokenRecord) error
	GetRefreshToken(ctx context.Context, tokenHash string) (RefreshTokenRecord, error)
	DeleteRefreshToken(ctx context.Context, tokenHash string) error
	DeleteRefreshTokensForUser(ctx context.Context, userID string) error
}
