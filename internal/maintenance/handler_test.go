package maintenance_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"account-service/internal/auth"
	"account-service/internal/maintenance"
	"account-service/internal/observability"
)

type cleanerSpy struct {
	calls     int
	retention time.Duration
	batchSize int
	result    auth.CleanupResult
}

func (c *cleanerSpy) CleanupStaleAuthData(_ context.Context, lockoutRetention time.Duration, batchSize int) (auth.CleanupResult, error) {
	c.calls++
	c.retention = lockoutRetention
	c.batchSize = batchSize
	return c.result, nil
}

func runCleanup(t *testing.T, handler *maintenance.CleanupHandler, authorization string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/cleanup", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)
	return rec
}

func TestCleanupDisabledWithoutSecret(t *testing.T) {
	spy := &cleanerSpy{}
	handler := maintenance.NewCleanupHandler(spy, observability.NewLogger("disabled"), "", 30*24*time.Hour, 500)

	rec := runCleanup(t, handler, "Bearer anything")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Zero(t, spy.calls)
}

func TestCleanupRejectsWrongSecret(t *testing.T) {
	spy := &cleanerSpy{}
	handler := maintenance.NewCleanupHandler(spy, observability.NewLogger("disabled"), "cron-secret", 30*24*time.Hour, 500)

	for _, header := range []string{"", "Bearer wrong", "cron-secret", "Basic cron-secret"} {
		rec := runCleanup(t, handler, header)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
	require.Zero(t, spy.calls)
}

func TestCleanupRunsWithConfiguredBounds(t *testing.T) {
	spy := &cleanerSpy{result: auth.CleanupResult{DeletedRefreshTokens: 12, ClearedLockouts: 3}}
	handler := maintenance.NewCleanupHandler(spy, observability.NewLogger("disabled"), "cron-secret", 30*24*time.Hour, 500)

	rec := runCleanup(t, handler, "Bearer cron-secret")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, spy.calls)
	require.Equal(t, 30*24*time.Hour, spy.retention)
	require.Equal(t, 500, spy.batchSize)
	require.Contains(t, rec.Body.String(), `"deleted_refresh_tokens":12`)
}
