package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPDirectPeer(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.9:51234"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	if got := ClientIP(r, false); got != "203.0.113.9" {
		t.Fatalf("ClientIP = %q, want direct peer", got)
	}
}

func TestClientIPTrustedForwarded(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.2:443"
	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.2")
	if got := ClientIP(r, true); got != "198.51.100.1" {
		t.Fatalf("ClientIP = %q, want first forwarded hop", got)
	}
}

func TestClientIPIgnoresGarbageForwarded(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.9:51234"
	r.Header.Set("X-Forwarded-For", "not-an-ip")
	if got := ClientIP(r, true); got != "203.0.113.9" {
		t.Fatalf("ClientIP = %q, want fallback to peer", got)
	}
}
