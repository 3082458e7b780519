// package auth provides HS256 bearer-token verification for the mutating
// HTTP routes. Read routes stay open; the triage board in the waiting room
// must keep rendering without credentials.
package auth

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const ctxKeyAuthInfo ctxKey = "triage.authInfo"

// AuthInfo holds the identity extracted from a validated token.
type AuthInfo struct {
	Subject string
	Role    string
}

// FromContext returns the AuthInfo stored in the request context, or nil.
func FromContext(ctx context.Context) *AuthInfo {
	if ai, ok := ctx.Value(ctxKeyAuthInfo).(*AuthInfo); ok {
		return ai
	}
	return nil
}

// Verifier signs and verifies HS256 tokens with a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

type claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Sign issues a token for subject, valid for ttl.
func (v *Verifier) Sign(subject, role string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return tok.SignedString(v.secret)
}

// Verify parses and validates the token string.
func (v *Verifier) Verify(tokenStr string) (*AuthInfo, error) {
	var c claims
	tok, err := jwt.ParseWithClaims(tokenStr, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token parse error: %w", err)
	}
	if !tok.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return &AuthInfo{Subject: c.Subject, Role: c.Role}, nil
}

// Middleware rejects requests without a valid bearer token and places the
// extracted AuthInfo into the request context for downstream handlers.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return
		}
		ai, err := v.Verify(strings.TrimSpace(authz[7:]))
		if err != nil {
			log.Printf("[auth] rejected token: %v", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyAuthInfo, ai)))
	})
}
