package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"account-service/internal/auth"
	"account-service/internal/auth/storefake"
)

type serviceFixture struct {
	store   *storefake.FakeStore
	issuer  *auth.TokenIssuer
	service *auth.Service
	now     time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		store: storefake.NewFakeStore(),
		now:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	f.issuer = auth.NewTokenIssuer(testAccessSecret, testRefreshSecret)
	f.issuer.WithNowFunc(func() time.Time { return f.now })

	f.service = auth.NewService(f.store, f.issuer)
	f.service.WithNowFunc(func() time.Time { return f.now })

	return f
}

func (f *serviceFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *serviceFixture) register(t *testing.T, email, password string) auth.UserSummary {
	t.Helper()

	user, err := f.service.Register(context.Background(), "Test User", email, password)
	require.NoError(t, err)
	return user
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newServiceFixture(t)

	f.register(t, "jane@example.com", "password123")
	_, err := f.service.Register(context.Background(), "Other", "JANE@example.com", "password456")
	require.ErrorIs(t, err, auth.ErrDuplicateEmail)
}

func TestLoginUnknownEmailIsInvalidCredentials(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.Login(context.Background(), "nobody@example.com", "whatever1")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestLoginLocksAfterFiveFailures(t *testing.T) {
	f := newServiceFixture(t)
	user := f.register(t, "jane@example.com", "password123")

	for i := 0; i < 5; i++ {
		_, err := f.service.Login(context.Background(), "jane@example.com", "wrong-password")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials, "failure %d reports bad credentials, not the lock", i+1)
	}

	// Sixth attempt with the correct secret is still refused.
	_, err := f.service.Login(context.Background(), "jane@example.com", "password123")
	var locked auth.ErrAccountLocked
	require.ErrorAs(t, err, &locked)
	require.Equal(t, f.now.Add(30*time.Minute), locked.Until)

	stored, ok := f.store.User(user.ID)
	require.True(t, ok)
	require.Equal(t, 5, stored.FailedLoginAttempts)
}

func TestLoginSucceedsOnceLockLapses(t *testing.T) {
	f := newServiceFixture(t)
	user := f.register(t, "jane@example.com", "password123")

	for i := 0; i < 5; i++ {
		_, err := f.service.Login(context.Background(), "jane@example.com", "wrong-password")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	}

	f.advance(29 * time.Minute)
	_, err := f.service.Login(context.Background(), "jane@example.com", "password123")
	var locked auth.ErrAccountLocked
	require.ErrorAs(t, err, &locked)

	f.advance(time.Minute)
	result, err := f.service.Login(context.Background(), "jane@example.com", "password123")
	require.NoError(t, err)
	require.NotEmpty(t, result.AccessToken)

	// Success resets the counter and clears the lock.
	stored, ok := f.store.User(user.ID)
	require.True(t, ok)
	require.Zero(t, stored.FailedLoginAttempts)
	require.Nil(t, stored.LockedUntil)
}

func TestSecondLoginInvalidatesFirstRefreshToken(t *testing.T) {
	f := newServiceFixture(t)
	user := f.register(t, "jane@example.com", "password123")

	first, err := f.service.Login(context.Background(), "jane@example.com", "password123")
	require.NoError(t, err)

	second, err := f.service.Login(context.Background(), "jane@example.com", "password123")
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// Exactly one live record per user, always.
	require.Equal(t, 1, f.store.TokenCount(user.ID))

	_, err = f.service.Refresh(context.Background(), first.RefreshToken)
	require.ErrorIs(t, err, auth.ErrTokenInvalid)

	_, err = f.service.Refresh(context.Background(), second.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshMintsAccessTokenWithoutRotating(t *testing.T) {
	f := newServiceFixture(t)
	user := f.register(t, "jane@example.com", "password123")

	result, err := f.service.Login(context.Background(), "jane@example.com", "password123")
	require.NoError(t, err)

	f.advance(16 * time.Minute)

	accessToken, err := f.service.Refresh(context.Background(), result.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, result.AccessToken, accessToken)

	claims, err := f.issuer.VerifyAccessToken(accessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)

	// The refresh record is untouched: the same credential keeps working.
	require.Equal(t, 1, f.store.TokenCount(user.ID))
	_, err = f.service.Refresh(context.Background(), result.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRederivesRoleFromStore(t *testing.T) {
	f := newServiceFixture(t)
	user := f.register(t, "jane@example.com", "password123")
	f.store.SetRole(user.ID, auth.RoleAdmin)

	result, err := f.service.Login(context.Background(), "jane@example.com", "password123")
	require.NoError(t, err)

	// Downgrade after login: the next renewal must observe it immediately.
	f.store.SetRole(user.ID, auth.RoleUser)

	accessToken, err := f.service.Refresh(context.Background(), result.RefreshToken)
	require.NoError(t, err)

	claims, err := f.issuer.VerifyAccessToken(accessToken)
	require.NoError(t, err)
	require.Equal(t, auth.RoleUser, claims.Role)
}

func TestRefreshFailsAfterLogout(t *testing.T) {
	f := newServiceFixture(t)
	user := f.register(t, "jane@example.com", "password123")

	result, err := f.service.Login(context.Background(), "jane@example.com", "password123")
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(context.Background(), result.RefreshToken))
	require.Zero(t, f.store.TokenCount(user.ID))

	_, err = f.service.Refresh(context.Background(), result.RefreshToken)
	require.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestRefreshFailsWhenTokenExpired(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "jane@example.com", "password123")

	result, err := f.service.Login(context.Background(), "jane@example.com", "password123")
	require.NoError(t, err)

	f.advance(7*24*time.Hour + time.Minute)

	_, err = f.service.Refresh(context.Background(), result.RefreshToken)
	require.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestRefreshFailsWhenUserDeleted(t *testing.T) {
	f := newServiceFixture(t)
	user := f.register(t, "jane@example.com", "password123")

	result, err := f.service.Login(context.Background(), "jane@example.com", "password123")
	require.NoError(t, err)

	f.store.DeleteUser(user.ID)

	_, err = f.service.Refresh(context.Background(), result.RefreshToken)
	require.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestRefreshRejectsForgedToken(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "jane@example.com", "password123")

	_, err := f.service.Login(context.Background(), "jane@example.com", "password123")
	require.NoError(t, err)

	forger := auth.NewTokenIssuer(testAccessSecret, "not-the-refresh-secret")
	forger.WithNowFunc(func() time.Time { return f.now })
	forged, _, err := forger.IssueRefreshToken("user-1")
	require.NoError(t, err)

	_, err = f.service.Refresh(context.Background(), forged)
	require.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestRefreshRejectsSignedTokenWithoutStoreRecord(t *testing.T) {
	f := newServiceFixture(t)
	user := f.register(t, "jane@example.com", "password123")

	// Correctly signed, never persisted: signature validity alone is not
	// enough to renew.
	stray, _, err := f.issuer.IssueRefreshToken(user.ID)
	require.NoError(t, err)

	_, err = f.service.Refresh(context.Background(), stray)
	require.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestLogoutWithUnknownTokenIsNoop(t *testing.T) {
	f := newServiceFixture(t)

	require.NoError(t, f.service.Logout(context.Background(), ""))
	require.NoError(t, f.service.Logout(context.Background(), "not-a-token"))
}
