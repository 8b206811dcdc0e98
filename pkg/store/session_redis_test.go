package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisSessionRoundTrip(t *testing.T) {
	r := miniredis.RunT(t)
	s := NewRedisSessionStore(r.Addr(), "", time.Hour)

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

	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.GetGuardianIDByToken(token); ok {
		t.Fatalf("deleted token should not resolve")
	}
}

func TestRedisSessionExpiry(t *testing.T) {
	r := miniredis.RunT(t)
	s := NewRedisSessionStore(r.Addr(), "", time.Minute)

	token, err := s.NewSession("guardian-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	r.FastForward(2 * time.Minute)
	if _, ok, _ := s.GetGuardianIDByToken(token); ok {
		t.Fatalf("expired token should not resolve")
	}
}

func TestRedisSessionUnknownToken(t *testing.T) {
	r := miniredis.RunT(t)
	s := NewRedisSessionStore(r.Addr(), "", time.Hour)
	if _, ok, err := s.GetGuardianIDByToken("nope"); ok || err != nil {
		t.Fatalf("unknown token = (%v, %v), want miss without error", ok, err)
	}
}
