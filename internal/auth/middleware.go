package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type contextKey struct{}

var claimsContextKey contextKey

// Guard validates incoming access credentials and enforces role membership on
// protected operations.
type Guard struct {
	tokens *TokenIssuer
}

func NewGuard(tokens *TokenIssuer) *Guard {
	return &Guard{tokens: tokens}
}

// Authenticate extracts and verifies the bearer token, then stores the claims
// in the request context. Missing, expired, and invalid tokens are reported
// with distinct codes: clients renew on expiry and force a logout on the rest.
func (g *Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			WriteError(w, http.StatusUnauthorized, CodeMissingToken, "missing authorization token")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			WriteError(w, http.StatusUnauthorized, CodeTokenInvalid, "invalid authorization format")
			return
		}

		claims, err := g.tokens.VerifyAccessToken(strings.TrimSpace(parts[1]))
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				WriteError(w, http.StatusUnauthorized, CodeTokenExpired, "access token expired")
				return
			}
			WriteError(w, http.StatusUnauthorized, CodeTokenInvalid, "invalid access token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsContextKey, claims)))
	})
}

// RequireRoles rejects authenticated requests whose role is outside the
// allowed set. It must run after Authenticate.
func (g *Guard) RequireRoles(allowed ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				WriteError(w, http.StatusUnauthorized, CodeMissingToken, "authentication required")
				return
			}

			for _, role := range allowed {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			WriteError(w, http.StatusForbidden, CodeInsufficientRole, "insufficient role")
		})
	}
}

func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(Claims)
	return claims, ok
}
