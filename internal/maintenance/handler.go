package maintenance

import (
	"context"
	"net/http"
	"strings"
	"time"

	"account-service/internal/auth"
	"account-service/internal/observability"
)

// Cleaner removes stale auth data in bounded batches; satisfied by
// auth.Repository.
type Cleaner interface {
	CleanupStaleAuthData(ctx context.Context, lockoutRetention time.Duration, batchSize int) (auth.CleanupResult, error)
}

// CleanupHandler purges expired refresh records and long-lapsed lockout state.
// It is meant to be hit by a scheduler and is disabled unless a cron secret is
// configured.
type CleanupHandler struct {
	repo             Cleaner
	logger           *observability.Logger
	cronSecret       string
	lockoutRetention time.Duration
	batchSize        int
}

func NewCleanupHandler(
	repo Cleaner,
	logger *observability.Logger,
	cronSecret string,
	lockoutRetention time.Duration,
	batchSize int,
) *CleanupHandler {
	return &CleanupHandler{
		repo:             repo,
		logger:           logger,
		cronSecret:       strings.TrimSpace(cronSecret),
		lockoutRetention: lockoutRetention,
		batchSize:        batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		auth.WriteError(w, http.StatusNotFound, auth.CodeValidationError, "not found")
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		auth.WriteError(w, http.StatusUnauthorized, auth.CodeMissingToken, "unauthorized")
		return
	}

	result, err := h.repo.CleanupStaleAuthData(r.Context(), h.lockoutRetention, h.batchSize)
	if err != nil {
		h.logger.Error("auth_cleanup_failed", map[string]any{"error": err.Error()})
		auth.WriteError(w, http.StatusInternalServerError, auth.CodeInternalError, "cleanup failed")
		return
	}

	h.logger.Info("auth_cleanup_completed", map[string]any{
		"deleted_refresh_tokens": result.DeletedRefreshTokens,
		"cleared_lockouts":       result.ClearedLockouts,
	})

	auth.WriteSuccess(w, http.StatusOK, result)
}
