// Package auth gates the API behind the couple's shared PIN. A correct PIN
// plus a user selection produces a signed session token; every other route
// requires that token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"cozyfin/internal/core"
)

var (
	ErrInvalidPIN   = errors.New("invalid pin")
	ErrInvalidToken = errors.New("invalid token")
)

type Service struct {
	secret  []byte
	pinHash []byte
	ttl     time.Duration
}

func New(secret, pinHash string, ttl time.Duration) (*Service, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 characters")
	}
	if pinHash == "" {
		return nil, errors.New("missing pin hash")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("invalid session ttl %v", ttl)
	}
	return &Service{
		secret:  []byte(secret),
		pinHash: []byte(pinHash),
		ttl:     ttl,
	}, nil
}

// HashPIN produces the bcrypt hash to store in configuration.
func HashPIN(pin string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(h), nil
}

type claims struct {
	User string `json:"user"`
	jwt.RegisteredClaims
}

// Login checks the PIN and mints a session token for the chosen user.
func (s *Service) Login(pin string, user core.UserID) (string, error) {
	if !user.Valid() {
		return "", fmt.Errorf("%w: %q", core.ErrUnknownUser, user)
	}
	if err := bcrypt.CompareHashAndPassword(s.pinHash, []byte(pin)); err != nil {
		return "", ErrInvalidPIN
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		User: string(user),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(user),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token, returning the user it was
// minted for.
func (s *Service) Verify(tokenString string) (core.UserID, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	user, err := core.ParseUserID(c.User)
	if err != nil {
		return "", ErrInvalidToken
	}
	return user, nil
}

type contextKey string

const userContextKey contextKey = "auth_user"

// UserFromContext returns the authenticated user stored by Middleware.
func UserFromContext(ctx context.Context) (core.UserID, bool) {
	u, ok := ctx.Value(userContextKey).(core.UserID)
	return u, ok
}

// Middleware rejects requests without a valid Bearer token and stores the
// session user in the request context.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, `{"error":"missing token"}`, http.StatusUnauthorized)
			return
		}
		user, err := s.Verify(token)
		if err != nil {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}
