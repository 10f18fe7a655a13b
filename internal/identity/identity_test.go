package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestTokenResolver(t *testing.T) {
	r, err := NewTokenResolver("s3cret")
	if err != nil {
		t.Fatalf("NewTokenResolver: %v", err)
	}
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Unix()

	id, err := r.Resolve(ctx, sign(t, "s3cret", jwt.MapClaims{"id": "user-1", "exp": exp}))
	if err != nil || id != "user-1" {
		t.Fatalf("id claim: %q %v", id, err)
	}
	id, err = r.Resolve(ctx, sign(t, "s3cret", jwt.MapClaims{"sub": "user-2", "exp": exp}))
	if err != nil || id != "user-2" {
		t.Fatalf("sub claim: %q %v", id, err)
	}

	bad := []string{
		sign(t, "other", jwt.MapClaims{"id": "user-1", "exp": exp}),
		sign(t, "s3cret", jwt.MapClaims{"id": "user-1", "exp": time.Now().Add(-time.Hour).Unix()}),
		sign(t, "s3cret", jwt.MapClaims{"id": "user-1"}),
		"not-a-token",
	}
	for i, tok := range bad {
		if _, err := r.Resolve(ctx, tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("bad token %d: expected ErrInvalidToken, got %v", i, err)
		}
	}
	if _, err := r.Resolve(ctx, ""); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	if _, err := NewTokenResolver(""); err == nil {
		t.Fatalf("expected error without secret")
	}
}

func TestRemoteResolver(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/api/auth/me" {
			http.NotFound(w, r)
			return
		}
		c, err := r.Cookie("token")
		if err != nil || c.Value == "bad" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if c.Value == "flaky" && n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":{"_id":"65f0c0ffee","email":"a@b.c"},"token":"` + c.Value + `"}`))
	}))
	defer srv.Close()

	r := NewRemoteResolver(srv.URL, WithTimeout(2*time.Second))
	ctx := context.Background()

	id, err := r.Resolve(ctx, "good")
	if err != nil || id != "65f0c0ffee" {
		t.Fatalf("Resolve good: %q %v", id, err)
	}
	if _, err := r.Resolve(ctx, "bad"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	atomic.StoreInt32(&calls, 0)
	id, err = r.Resolve(ctx, "flaky")
	if err != nil || id != "65f0c0ffee" {
		t.Fatalf("Resolve should retry on 503: %q %v", id, err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestDecodeUserID(t *testing.T) {
	if id, err := decodeUserID([]byte(`{"user":{"id":"u9"}}`)); err != nil || id != "u9" {
		t.Fatalf("id field: %q %v", id, err)
	}
	if _, err := decodeUserID([]byte(`{"user":{}}`)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
