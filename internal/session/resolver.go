// Package session resolves the caller's session and gates protected
// routes.
package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sheetmind/sheetmind-backend/internal/apperrors"
)

// SessionCookie is the cookie carrying the local session token.
const SessionCookie = "sm_session"

// Session describes a resolved, still-valid session.
type Session struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// Resolver resolves the session for an inbound request. Absence and
// expiry both surface as a session-absent error: no partial trust.
type Resolver interface {
	Resolve(ctx context.Context, req *http.Request) (Session, error)
}

// CookieResolver validates an HS256 session token from the session
// cookie.
type CookieResolver struct {
	secret []byte
}

// NewCookieResolver constructs a CookieResolver.
func NewCookieResolver(secret string) *CookieResolver {
	return &CookieResolver{secret: []byte(secret)}
}

// sessionClaims are the registered claims carried by a session token.
type sessionClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Resolve validates the session cookie. Missing, malformed, or
// expired tokens all resolve to session-absent.
func (r *CookieResolver) Resolve(_ context.Context, req *http.Request) (Session, error) {
	cookie, errCookie := req.Cookie(SessionCookie)
	if errCookie != nil || strings.TrimSpace(cookie.Value) == "" {
		return Session{}, apperrors.NewSessionAbsent()
	}

	claims := &sessionClaims{}
	token, errParse := jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return r.secret, nil
	})
	if errParse != nil || !token.Valid {
		return Session{}, apperrors.NewSessionAbsent()
	}
	if claims.Subject == "" {
		return Session{}, apperrors.NewSessionAbsent()
	}

	sess := Session{UserID: claims.Subject, Email: claims.Email}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, nil
}

// IssueToken mints a session token for a user. Used by the hosted
// sign-in callback and by tests.
func (r *CookieResolver) IssueToken(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}
