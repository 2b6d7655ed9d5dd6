// Package users exposes the profile and admin user-management surface. It is
// deliberately simple CRUD; all lifecycle intelligence lives in internal/auth.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"account-service/internal/auth"
	"account-service/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Store is the slice of persistence the handlers need.
type Store interface {
	GetByID(ctx context.Context, id string) (auth.User, error)
	List(ctx context.Context) ([]auth.UserSummary, error)
	Create(ctx context.Context, user auth.User) error
	UpdateName(ctx context.Context, id, name string) error
	Update(ctx context.Context, params UpdateParams) error
	Delete(ctx context.Context, id string) error
}

// SessionRevoker drops a user's refresh credentials; satisfied by
// auth.Service.
type SessionRevoker interface {
	RevokeUserSessions(ctx context.Context, userID string) error
}

type Handler struct {
	store    Store
	sessions SessionRevoker
	logger   *observability.Logger
}

func NewHandler(store Store, sessions SessionRevoker, logger *observability.Logger) *Handler {
	return &Handler{store: store, sessions: sessions, logger: logger}
}

type profileResponse struct {
	auth.UserSummary
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		auth.WriteError(w, http.StatusUnauthorized, auth.CodeMissingToken, "authentication required")
		return
	}

	user, err := h.store.GetByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			auth.WriteError(w, http.StatusNotFound, auth.CodeUserNotFound, "user not found")
			return
		}
		h.internalError(w, r, "get_profile_failed", err)
		return
	}

	auth.WriteSuccess(w, http.StatusOK, profileResponse{UserSummary: user.Summary(), CreatedAt: user.CreatedAt})
}

type updateProfileRequest struct {
	Name string `json:"name"`
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		auth.WriteError(w, http.StatusUnauthorized, auth.CodeMissingToken, "authentication required")
		return
	}

	var body updateProfileRequest
	if !h.decodeJSON(w, r, &body) {
		return
	}

	body.Name = strings.TrimSpace(body.Name)
	if body.Name == "" || len(body.Name) > 100 {
		auth.WriteError(w, http.StatusBadRequest, auth.CodeValidationError, "name must be between 1 and 100 characters")
		return
	}

	if err := h.store.UpdateName(r.Context(), claims.UserID, body.Name); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			auth.WriteError(w, http.StatusNotFound, auth.CodeUserNotFound, "user not found")
			return
		}
		h.internalError(w, r, "update_profile_failed", err)
		return
	}

	auth.WriteMessage(w, http.StatusOK, "profile updated")
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.List(r.Context())
	if err != nil {
		h.internalError(w, r, "list_users_failed", err)
		return
	}

	auth.WriteSuccess(w, http.StatusOK, summaries)
}

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var body createUserRequest
	if !h.decodeJSON(w, r, &body) {
		return
	}

	role := auth.Role(strings.TrimSpace(body.Role))
	if message, ok := validateUser(body.Name, body.Email, role); !ok {
		auth.WriteError(w, http.StatusBadRequest, auth.CodeValidationError, message)
		return
	}
	if len(body.Password) < 8 || len(body.Password) > 200 {
		auth.WriteError(w, http.StatusBadRequest, auth.CodeValidationError, "password must be between 8 and 200 characters")
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		h.internalError(w, r, "create_user_failed", err)
		return
	}
	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		h.internalError(w, r, "create_user_failed", err)
		return
	}

	user := auth.User{
		ID:           id.String(),
		Name:         strings.TrimSpace(body.Name),
		Email:        strings.ToLower(strings.TrimSpace(body.Email)),
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.store.Create(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrDuplicateEmail) {
			auth.WriteError(w, http.StatusConflict, auth.CodeDuplicateEmail, "email is already registered")
			return
		}
		h.internalError(w, r, "create_user_failed", err)
		return
	}

	auth.WriteSuccess(w, http.StatusCreated, user.Summary())
}

type updateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body updateUserRequest
	if !h.decodeJSON(w, r, &body) {
		return
	}

	role := auth.Role(strings.TrimSpace(body.Role))
	if message, ok := validateUser(body.Name, body.Email, role); !ok {
		auth.WriteError(w, http.StatusBadRequest, auth.CodeValidationError, message)
		return
	}

	params := UpdateParams{
		ID:    id,
		Name:  strings.TrimSpace(body.Name),
		Email: strings.ToLower(strings.TrimSpace(body.Email)),
		Role:  role,
	}
	if strings.TrimSpace(body.Password) != "" {
		if len(body.Password) < 8 || len(body.Password) > 200 {
			auth.WriteError(w, http.StatusBadRequest, auth.CodeValidationError, "password must be between 8 and 200 characters")
			return
		}
		hash, err := auth.HashPassword(body.Password)
		if err != nil {
			h.internalError(w, r, "update_user_failed", err)
			return
		}
		params.PasswordHash = &hash
	}

	if err := h.store.Update(r.Context(), params); err != nil {
		switch {
		case errors.Is(err, auth.ErrUserNotFound):
			auth.WriteError(w, http.StatusNotFound, auth.CodeUserNotFound, "user not found")
		case errors.Is(err, auth.ErrDuplicateEmail):
			auth.WriteError(w, http.StatusConflict, auth.CodeDuplicateEmail, "email is already registered")
		default:
			h.internalError(w, r, "update_user_failed", err)
		}
		return
	}

	auth.WriteMessage(w, http.StatusOK, "user updated")
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		auth.WriteError(w, http.StatusUnauthorized, auth.CodeMissingToken, "authentication required")
		return
	}
	if claims.UserID == id {
		auth.WriteError(w, http.StatusBadRequest, auth.CodeValidationError, "you cannot delete your own account")
		return
	}

	// Revoke first so a live refresh credential cannot outlast the account.
	if err := h.sessions.RevokeUserSessions(r.Context(), id); err != nil {
		h.internalError(w, r, "delete_user_failed", err)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			auth.WriteError(w, http.StatusNotFound, auth.CodeUserNotFound, "user not found")
			return
		}
		h.internalError(w, r, "delete_user_failed", err)
		return
	}

	auth.WriteMessage(w, http.StatusOK, "user deleted")
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, event string, err error) {
	sentry.CaptureException(err)
	h.logger.Error(event, map[string]any{
		"path":  r.URL.Path,
		"error": err.Error(),
	})
	auth.WriteError(w, http.StatusInternalServerError, auth.CodeInternalError, "something went wrong")
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		auth.WriteError(w, http.StatusBadRequest, auth.CodeValidationError, "invalid json body")
		return false
	}

	return true
}

func validateUser(name, email string, role auth.Role) (string, bool) {
	if trimmed := strings.TrimSpace(name); trimmed == "" || len(trimmed) > 100 {
		return "name must be between 1 and 100 characters", false
	}
	if !emailRegex.MatchString(strings.ToLower(strings.TrimSpace(email))) {
		return "email format is invalid", false
	}
	if !role.Valid() {
		return "role must be user or admin", false
	}
	return "", true
}
