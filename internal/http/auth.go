package http

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/portal-scheduler/internal/application"
)

// AdminKeyPrincipalID identifies requests authenticated with the admin API key.
const AdminKeyPrincipalID = "admin-key"

// SessionClaims are the JWT claims the portal issues for scheduler sessions.
type SessionClaims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

// TokenAuthenticator validates HS256 session tokens and the bcrypt hashed
// administrator key.
type TokenAuthenticator struct {
	secret       []byte
	adminKeyHash []byte
	now          func() time.Time
}

// NewTokenAuthenticator returns an authenticator. An empty adminKeyHash
// disables admin key authentication.
func NewTokenAuthenticator(secret, adminKeyHash string, now func() time.Time) *TokenAuthenticator {
	if now == nil {
		now = time.Now
	}
	return &TokenAuthenticator{
		secret:       []byte(secret),
		adminKeyHash: []byte(strings.TrimSpace(adminKeyHash)),
		now:          now,
	}
}

// ValidateSession parses token and returns the principal it names.
func (a *TokenAuthenticator) ValidateSession(ctx context.Context, token string) (application.Principal, error) {
	if a == nil || len(a.secret) == 0 {
		return application.Principal{}, fmt.Errorf("%w: session secret not configured", application.ErrUnauthorized)
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !parsed.Valid {
		return application.Principal{}, fmt.Errorf("%w: %v", application.ErrUnauthorized, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return application.Principal{}, fmt.Errorf("%w: token has no subject", application.ErrUnauthorized)
	}
	return application.Principal{UserID: claims.Subject, IsAdmin: claims.Admin}, nil
}

// VerifyAdminKey reports whether key matches the configured hash.
func (a *TokenAuthenticator) VerifyAdminKey(key string) bool {
	if a == nil || len(a.adminKeyHash) == 0 || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.adminKeyHash, []byte(key)) == nil
}

// Issue signs a session token for principal valid for ttl.
func (a *TokenAuthenticator) Issue(principal application.Principal, ttl time.Duration) (string, time.Time, error) {
	if a == nil || len(a.secret) == 0 {
		return "", time.Time{}, errors.New("session secret not configured")
	}
	now := a.now()
	expires := now.Add(ttl)
	claims := SessionClaims{
		Admin: principal.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, expires, nil
}
