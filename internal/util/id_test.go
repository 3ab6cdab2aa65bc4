package util

import (
	"strings"
	"testing"
	"time"
)

func TestNewIDPrefix(t *testing.T) {
	id := NewID("req")
	if !strings.HasPrefix(id, "req_") {
		t.Fatalf("expected req_ prefix, got %q", id)
	}
	if len(id) != len("req_")+32 {
		t.Fatalf("unexpected id length %d for %q", len(id), id)
	}
	if NewID("") == NewID("") {
		t.Fatal("expected distinct ids")
	}
}

func TestNewPageIDShape(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	id := NewPageID(now)
	parts := strings.Split(id, "-")
	if len(parts) != 3 || parts[0] != "p" {
		t.Fatalf("unexpected page id %q", id)
	}
	if parts[1] != "loyw3v28" {
		t.Fatalf("expected base36 millis loyw3v28, got %q", parts[1])
	}
	if len(parts[2]) != 6 {
		t.Fatalf("expected 6 char suffix, got %q", parts[2])
	}
}
