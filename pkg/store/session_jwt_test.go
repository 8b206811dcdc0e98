package store

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestJWTSessionRoundTrip(t *testing.T) {
	s, err := NewJWTSessionStore(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	token, err := s.NewSession("guardian-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	id, ok, err := s.GetGuardianIDByToken(token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !ok || id != "guardian-1" {
		t.Fatalf("resolve = (%q, %v), want guardian-1", id, ok)
	}
}

func TestJWTSessionRejectsTampering(t *testing.T) {
	s, err := NewJWTSessionStore(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	token, err := s.NewSession("guardian-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("malformed token")
	}
	forged := parts[0] + "." + parts[1] + ".AAAA"
	if _, ok, _ := s.GetGuardianIDByToken(forged); ok {
		t.Fatalf("tampered token should not validate")
	}
}

func TestJWTSessionRejectsExpired(t *testing.T) {
	s, err := NewJWTSessionStore(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	s.ttl = -2 * time.Minute
	token, err := s.NewSession("guardian-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, _ := s.GetGuardianIDByToken(token); ok {
		t.Fatalf("expired token should not validate")
	}
}

func TestJWTSessionSecretTooShort(t *testing.T) {
	if _, err := NewJWTSessionStore("short", time.Hour); err == nil {
		t.Fatalf("expected error for short secret")
	}
}
