// Package storefake provides an in-memory auth.Store for tests.
package storefake

import (
	"context"
	"sync"
	"time"

	"account-service/internal/auth"
)

type FakeStore struct {
	mu      sync.Mutex
	users   map[string]auth.User               // by id
	byEmail map[string]string                  // email -> id
	tokens  map[string]auth.RefreshTokenRecord // by token hash
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		users:   make(map[string]auth.User),
		byEmail: make(map[string]string),
		tokens:  make(map[string]auth.RefreshTokenRecord),
	}
}

func (f *FakeStore) CreateUser(_ context.Context, user auth.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.byEmail[user.Email]; exists {
		return auth.ErrDuplicateEmail
	}
	f.users[user.ID] = user
	f.byEmail[user.Email] = user.ID
	return nil
}

func (f *FakeStore) GetUserByEmail(_ context.Context, email string) (auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.byEmail[email]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return f.users[id], nil
}

func (f *FakeStore) GetUserByID(_ context.Context, id string) (auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[id]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return user, nil
}

func (f *FakeStore) RegisterFailedAttempt(_ context.Context, userID string, policy auth.LockoutPolicy, now time.Time) (auth.LockState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[userID]
	if !ok {
		return auth.LockState{}, auth.ErrUserNotFound
	}

	next := policy.OnFailure(auth.LockState{
		FailedAttempts: user.FailedLoginAttempts,
		LockedUntil:    user.LockedUntil,
	}, now)

	user.FailedLoginAttempts = next.FailedAttempts
	user.LockedUntil = next.LockedUntil
	f.users[userID] = user
	return next, nil
}

func (f *FakeStore) ResetLockState(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[userID]
	if !ok {
		return auth.ErrUserNotFound
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	f.users[userID] = user
	return nil
}

func (f *FakeStore) ReplaceRefreshTokens(_ context.Context, record auth.RefreshTokenRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for hash, existing := range f.tokens {
		if existing.UserID == record.UserID {
			delete(f.tokens, hash)
		}
	}
	f.tokens[record.TokenHash] = record
	return nil
}

func (f *FakeStore) GetRefreshToken(_ context.Context, tokenHash string) (auth.RefreshTokenRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.tokens[tokenHash]
	if !ok {
		return auth.RefreshTokenRecord{}, auth.ErrTokenInvalid
	}
	return record, nil
}

func (f *FakeStore) DeleteRefreshToken(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.tokens, tokenHash)
	return nil
}

func (f *FakeStore) DeleteRefreshTokensForUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for hash, record := range f.tokens {
		if record.UserID == userID {
			delete(f.tokens, hash)
		}
	}
	return nil
}

// DeleteUser removes the user record, simulating an account deleted while a
// refresh credential is still in the wild.
func (f *FakeStore) DeleteUser(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[userID]
	if !ok {
		return
	}
	delete(f.byEmail, user.Email)
	delete(f.users, userID)
}

// SetRole updates the stored role, simulating an admin downgrade.
func (f *FakeStore) SetRole(userID string, role auth.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if user, ok := f.users[userID]; ok {
		user.Role = role
		f.users[userID] = user
	}
}

// TokenCount reports how many refresh records exist for the user.
func (f *FakeStore) TokenCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, record := range f.tokens {
		if record.UserID == userID {
			count++
		}
	}
	return count
}

// User returns the stored record for assertions.
func (f *FakeStore) User(userID string) (auth.User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[userID]
	return user, ok
}
