package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims is the verified content of an access token.
type Claims struct {
	UserID    string
	Role      Role
	ExpiresAt time.Time
}

// TokenIssuer mints and verifies the two token kinds. Access and refresh
// tokens are signed with disjoint secrets so one can never stand in for the
// other. Refresh tokens carry no role claim: the role is always re-derived
// from the store on renewal.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenIssuer(accessSecret, refreshSecret string) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		now:           time.Now,
	}
}

func (t *TokenIssuer) WithTTL(accessTTL, refreshTTL time.Duration) {
	if accessTTL > 0 {
		t.accessTTL = accessTTL
	}
	if refreshTTL > 0 {
		t.refreshTTL = refreshTTL
	}
}

// WithNowFunc overrides the clock, primarily for tests.
func (t *TokenIssuer) WithNowFunc(now func() time.Time) {
	t.now = now
}

func (t *TokenIssuer) AccessTTL() time.Duration {
	return t.accessTTL
}

func (t *TokenIssuer) RefreshTTL() time.Duration {
	return t.refreshTTL
}

func (t *TokenIssuer) IssueAccessToken(userID string, role Role) (string, error) {
	now := t.now().UTC()
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  now.Add(t.accessTTL).Unix(),
		"typ":  tokenTypeAccess,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(t.accessSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return encoded, nil
}

func (t *TokenIssuer) IssueRefreshToken(userID string) (string, time.Time, error) {
	now := t.now().UTC()
	expiresAt := now.Add(t.refreshTTL)
	// The jti keeps two tokens minted in the same second distinct, so a
	// relogin always produces a fresh credential.
	claims := jwt.MapClaims{
		"sub": userID,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
		"typ": tokenTypeRefresh,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	encoded, err := token.SignedString(t.refreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return encoded, expiresAt, nil
}

// VerifyAccessToken checks signature and expiry against the access secret.
// Expired-but-otherwise-valid tokens fail with ErrTokenExpired so callers can
// route them to the renewal path instead of a forced logout.
func (t *TokenIssuer) VerifyAccessToken(raw string) (Claims, error) {
	claims, err := t.parse(raw, t.accessSecret, tokenTypeAccess)
	if err != nil {
		return Claims{}, err
	}

	role := Role(stringClaim(claims, "role"))
	if !role.Valid() {
		return Claims{}, ErrTokenInvalid
	}

	return Claims{
		UserID:    stringClaim(claims, "sub"),
		Role:      role,
		ExpiresAt: expiryClaim(claims),
	}, nil
}

// VerifyRefreshToken checks signature and expiry against the refresh secret
// and returns the subject. Signature validity alone never authorizes a
// renewal; the caller must still find a live store record.
func (t *TokenIssuer) VerifyRefreshToken(raw string) (string, error) {
	claims, err := t.parse(raw, t.refreshSecret, tokenTypeRefresh)
	if err != nil {
		return "", err
	}

	subject := stringClaim(claims, "sub")
	if subject == "" {
		return "", ErrTokenInvalid
	}

	return subject, nil
}

func (t *TokenIssuer) parse(raw string, secret []byte, wantType string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if tokenType := stringClaim(claims, "typ"); tokenType != wantType {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// HashTokenValue is the at-rest form of a refresh token. The store only ever
// sees hashes; lookups hash the presented value and match exactly.
func HashTokenValue(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func stringClaim(claims jwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return value
}

func expiryClaim(claims jwt.MapClaims) time.Time {
	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return time.Time{}
	}
	return expiry.Time
}
