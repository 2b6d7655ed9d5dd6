package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"account-service/internal/observability"
)

const (
	maxJSONBodyBytes = 1 << 20

	// RefreshCookieName is the HttpOnly cookie carrying the refresh
	// credential. It is scoped to the auth endpoints and never readable by
	// scripts or sent in a request body.
	RefreshCookieName = "refresh_token"
	refreshCookiePath = "/auth"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

type Handler struct {
	service       *Service
	logger        *observability.Logger
	secureCookies bool
}

func NewHandler(service *Service, logger *observability.Logger, secureCookies bool) *Handler {
	return &Handler{service: service, logger: logger, secureCookies: secureCookies}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string      `json:"accessToken"`
	User        UserSummary `json:"user"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if message, ok := validateRegistration(body); !ok {
		WriteError(w, http.StatusBadRequest, CodeValidationError, message)
		return
	}

	user, err := h.service.Register(r.Context(), body.Name, body.Email, body.Password)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			WriteError(w, http.StatusBadRequest, CodeDuplicateEmail, "email is already registered")
			return
		}
		h.internalError(w, r, "register_failed", err)
		return
	}

	WriteSuccess(w, http.StatusCreated, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.Email = strings.TrimSpace(body.Email)
	if body.Email == "" || body.Password == "" {
		WriteError(w, http.StatusBadRequest, CodeValidationError, "email and password are required")
		return
	}

	result, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			WriteError(w, http.StatusUnauthorized, CodeInvalidCredentials, "email or password is incorrect")
			return
		}
		var locked ErrAccountLocked
		if errors.As(err, &locked) {
			retryAfter := int(time.Until(locked.Until).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			WriteError(w, http.StatusLocked, CodeAccountLocked, "account temporarily locked")
			return
		}
		h.internalError(w, r, "login_failed", err)
		return
	}

	h.setRefreshCookie(w, result.RefreshToken, result.RefreshExpiresAt)
	WriteSuccess(w, http.StatusOK, loginResponse{AccessToken: result.AccessToken, User: result.User})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		WriteError(w, http.StatusUnauthorized, CodeMissingToken, "no refresh token")
		return
	}

	accessToken, err := h.service.Refresh(r.Context(), cookie.Value)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenExpired):
			WriteError(w, http.StatusForbidden, CodeTokenExpired, "refresh token expired")
		case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrMissingToken):
			WriteError(w, http.StatusForbidden, CodeTokenInvalid, "invalid refresh token")
		case errors.Is(err, ErrUserNotFound):
			WriteError(w, http.StatusNotFound, CodeUserNotFound, "user not found")
		default:
			h.internalError(w, r, "refresh_failed", err)
		}
		return
	}

	WriteSuccess(w, http.StatusOK, refreshResponse{AccessToken: accessToken})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var presented string
	if cookie, err := r.Cookie(RefreshCookieName); err == nil {
		presented = cookie.Value
	}

	if err := h.service.Logout(r.Context(), presented); err != nil {
		h.internalError(w, r, "logout_failed", err)
		return
	}

	h.clearRefreshCookie(w)
	WriteMessage(w, http.StatusOK, "logged out")
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, value string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     refreshCookiePath,
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, event string, err error) {
	sentry.CaptureException(err)
	h.logger.Error(event, map[string]any{
		"path":  r.URL.Path,
		"error": err.Error(),
	})
	WriteError(w, http.StatusInternalServerError, CodeInternalError, "something went wrong")
}

func validateRegistration(body registerRequest) (string, bool) {
	name := strings.TrimSpace(body.Name)
	if name == "" || len(name) > 100 {
		return "name must be between 1 and 100 characters", false
	}
	if !emailRegex.MatchString(strings.ToLower(strings.TrimSpace(body.Email))) {
		return "email format is invalid", false
	}
	if len(body.Password) < 8 || len(body.Password) > 200 {
		return "password must be between 8 and 200 characters", false
	}
	return "", true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		WriteError(w, http.StatusBadRequest, CodeValidationError, "invalid json body")
		return false
	}

	return true
}
