package domain

import (
	"testing"
	"time"
)

func TestShareID_EmbedsOwner(t *testing.T) {
	now := time.UnixMilli(1718000000000)
	id := NewShareID("P1", now)

	if id != "share-P1-1718000000000" {
		t.Fatalf("unexpected id %q", id)
	}

	owner, ok := ShareOwner(id)
	if !ok {
		t.Fatalf("expected owner from %q", id)
	}
	if owner != "P1" {
		t.Errorf("expected owner P1, got %q", owner)
	}
}

func TestShareID_OwnerWithDashes(t *testing.T) {
	id := NewShareID("player-two", time.UnixMilli(42))

	owner, ok := ShareOwner(id)
	if !ok || owner != "player-two" {
		t.Errorf("expected owner player-two, got %q (ok=%v)", owner, ok)
	}
}

func TestShareOwner_Invalid(t *testing.T) {
	for _, id := range []string{"", "share-", "share-P1", "nope-P1-42", "share--42"} {
		if owner, ok := ShareOwner(id); ok {
			t.Errorf("expected failure for %q, got owner %q", id, owner)
		}
	}
}
