package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cozyfin/internal/core"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := HashPIN("0325")
	if err != nil {
		t.Fatalf("hash pin: %v", err)
	}
	s, err := New(testSecret, hash, time.Hour)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return s
}

func TestLoginAndVerify(t *testing.T) {
	s := newTestService(t)

	token, err := s.Login("0325", core.Hubby)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	user, err := s.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if user != core.Hubby {
		t.Fatalf("expected hubby, got %s", user)
	}
}

func TestLoginWrongPIN(t *testing.T) {
	s := newTestService(t)
	if _, err := s.Login("9999", core.Hubby); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("expected ErrInvalidPIN, got %v", err)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	s := newTestService(t)
	if _, err := s.Login("0325", "someone"); !errors.Is(err, core.ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestVerifyGarbageToken(t *testing.T) {
	s := newTestService(t)
	if _, err := s.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	hash, _ := HashPIN("0325")
	s, err := New(testSecret, hash, time.Nanosecond)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	token, err := s.Login("0325", core.Wifey)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := s.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestNewRejectsWeakConfig(t *testing.T) {
	hash, _ := HashPIN("0325")
	if _, err := New("short", hash, time.Hour); err == nil {
		t.Fatal("expected error for short secret")
	}
	if _, err := New(testSecret, "", time.Hour); err == nil {
		t.Fatal("expected error for empty pin hash")
	}
	if _, err := New(testSecret, hash, 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestMiddleware(t *testing.T) {
	s := newTestService(t)

	var gotUser core.UserID
	handler := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token passes", func(t *testing.T) {
		token, _ := s.Login("0325", core.Wifey)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if gotUser != core.Wifey {
			t.Fatalf("expected wifey in context, got %s", gotUser)
		}
	})

	t.Run("missing token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("bad token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}
