package auth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"account-service/internal/auth"
	"account-service/internal/auth/storefake"
	"account-service/internal/observability"
)

type handlerFixture struct {
	store   *storefake.FakeStore
	issuer  *auth.TokenIssuer
	service *auth.Service
	mux     *http.ServeMux
	now     time.Time
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	f := &handlerFixture{
		store: storefake.NewFakeStore(),
		// Retry-After is computed against the wall clock, so the injected
		// clock starts at real time.
		now: time.Now().UTC(),
	}

	f.issuer = auth.NewTokenIssuer(testAccessSecret, testRefreshSecret)
	f.issuer.WithNowFunc(func() time.Time { return f.now })

	f.service = auth.NewService(f.store, f.issuer)
	f.service.WithNowFunc(func() time.Time { return f.now })

	handler := auth.NewHandler(f.service, observability.NewLogger("disabled"), false)

	f.mux = http.NewServeMux()
	f.mux.HandleFunc("POST /auth/register", handler.Register)
	f.mux.HandleFunc("POST /auth/login", handler.Login)
	f.mux.HandleFunc("POST /auth/refresh-token", handler.Refresh)
	f.mux.HandleFunc("POST /auth/logout", handler.Logout)
	return f
}

func (f *handlerFixture) post(t *testing.T, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(http.MethodPost, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) registerAndLogin(t *testing.T) (*httptest.ResponseRecorder, *http.Cookie) {
	t.Helper()

	rec := f.post(t, "/auth/register", `{"name":"Jane","email":"jane@example.com","password":"password123"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.post(t, "/auth/login", `{"email":"jane@example.com","password":"password123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	return rec, refreshCookie(t, rec)
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == auth.RefreshCookieName {
			return cookie
		}
	}
	t.Fatal("no refresh cookie in response")
	return nil
}

func successData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.True(t, envelope.Success)

	var data T
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	return data
}

func TestRegisterValidation(t *testing.T) {
	f := newHandlerFixture(t)

	cases := map[string]string{
		"missing name":   `{"email":"jane@example.com","password":"password123"}`,
		"bad email":      `{"name":"Jane","email":"not-an-email","password":"password123"}`,
		"short password": `{"name":"Jane","email":"jane@example.com","password":"short"}`,
		"unknown field":  `{"name":"Jane","email":"jane@example.com","password":"password123","admin":true}`,
		"not json":       `name=Jane`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := f.post(t, "/auth/register", body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, auth.CodeValidationError, decodeErrorBody(t, rec).Code)
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.post(t, "/auth/register", `{"name":"Jane","email":"jane@example.com","password":"password123"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.post(t, "/auth/register", `{"name":"Jane Again","email":"Jane@Example.com","password":"password456"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, auth.CodeDuplicateEmail, decodeErrorBody(t, rec).Code)
}

func TestLoginSetsHttpOnlyRefreshCookie(t *testing.T) {
	f := newHandlerFixture(t)

	rec, cookie := f.registerAndLogin(t)

	body := successData[struct {
		AccessToken string           `json:"accessToken"`
		User        auth.UserSummary `json:"user"`
	}](t, rec)
	require.NotEmpty(t, body.AccessToken)
	require.Equal(t, "jane@example.com", body.User.Email)
	require.Equal(t, auth.RoleUser, body.User.Role)

	require.True(t, cookie.HttpOnly)
	require.Equal(t, "/auth", cookie.Path)
	require.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	require.NotEmpty(t, cookie.Value)
	// The refresh credential never appears in the response body.
	require.NotContains(t, rec.Body.String(), cookie.Value)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newHandlerFixture(t)
	f.registerAndLogin(t)

	rec := f.post(t, "/auth/login", `{"email":"jane@example.com","password":"wrong-password"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, auth.CodeInvalidCredentials, decodeErrorBody(t, rec).Code)
}

func TestLoginLockoutReturns423WithRetryAfter(t *testing.T) {
	f := newHandlerFixture(t)
	f.registerAndLogin(t)

	for i := 0; i < 5; i++ {
		rec := f.post(t, "/auth/login", `{"email":"jane@example.com","password":"wrong-password"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}

	rec := f.post(t, "/auth/login", `{"email":"jane@example.com","password":"password123"}`)
	require.Equal(t, http.StatusLocked, rec.Code)
	require.Equal(t, auth.CodeAccountLocked, decodeErrorBody(t, rec).Code)

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	require.Greater(t, retryAfter, 0)
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	f := newHandlerFixture(t)
	loginRec, cookie := f.registerAndLogin(t)
	first := successData[struct {
		AccessToken string `json:"accessToken"`
	}](t, loginRec)

	f.now = f.now.Add(16 * time.Minute)

	rec := f.post(t, "/auth/refresh-token", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	renewed := successData[struct {
		AccessToken string `json:"accessToken"`
	}](t, rec)
	require.NotEmpty(t, renewed.AccessToken)
	require.NotEqual(t, first.AccessToken, renewed.AccessToken)

	// Renewal is repeatable with the same cookie.
	rec = f.post(t, "/auth/refresh-token", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshWithoutCookie(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.post(t, "/auth/refresh-token", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, auth.CodeMissingToken, decodeErrorBody(t, rec).Code)
}

func TestRefreshWithTamperedCookie(t *testing.T) {
	f := newHandlerFixture(t)
	_, cookie := f.registerAndLogin(t)

	tampered := &http.Cookie{Name: auth.RefreshCookieName, Value: cookie.Value + "x"}
	rec := f.post(t, "/auth/refresh-token", "", tampered)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, auth.CodeTokenInvalid, decodeErrorBody(t, rec).Code)
}

func TestRefreshWithExpiredCookie(t *testing.T) {
	f := newHandlerFixture(t)
	_, cookie := f.registerAndLogin(t)

	f.now = f.now.Add(7*24*time.Hour + time.Minute)

	rec := f.post(t, "/auth/refresh-token", "", cookie)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, auth.CodeTokenExpired, decodeErrorBody(t, rec).Code)
}

func TestSecondLoginInvalidatesFirstCookie(t *testing.T) {
	f := newHandlerFixture(t)
	_, firstCookie := f.registerAndLogin(t)

	rec := f.post(t, "/auth/login", `{"email":"jane@example.com","password":"password123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	secondCookie := refreshCookie(t, rec)

	rec = f.post(t, "/auth/refresh-token", "", firstCookie)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, auth.CodeTokenInvalid, decodeErrorBody(t, rec).Code)

	rec = f.post(t, "/auth/refresh-token", "", secondCookie)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutClearsCookieAndRevokesToken(t *testing.T) {
	f := newHandlerFixture(t)
	_, cookie := f.registerAndLogin(t)

	rec := f.post(t, "/auth/logout", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	cleared := refreshCookie(t, rec)
	require.Empty(t, cleared.Value)
	require.Negative(t, cleared.MaxAge)

	rec = f.post(t, "/auth/refresh-token", "", cookie)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, auth.CodeTokenInvalid, decodeErrorBody(t, rec).Code)
}

func TestLogoutWithoutCookieStillSucceeds(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.post(t, "/auth/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := refreshCookie(t, rec)
	require.Empty(t, cleared.Value)
}
