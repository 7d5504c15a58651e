package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := Errorf(ErrRoomFull, "room %s has two players", "R-ABC123")
	if !errors.Is(err, ErrRoomFull) {
		t.Fatalf("expected RoomFull match, got %v", err)
	}
	if errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("unexpected RoomNotFound match")
	}
	wrapped := fmt.Errorf("join: %w", err)
	if !errors.Is(wrapped, ErrRoomFull) {
		t.Fatalf("wrapped error lost its code")
	}
	if CodeOf(wrapped) != CodeRoomFull {
		t.Fatalf("CodeOf = %q", CodeOf(wrapped))
	}
}

func TestCodeOfUnknown(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != CodeInternal {
		t.Fatalf("CodeOf(unknown) = %q", got)
	}
	if got := CodeOf(nil); got != "" {
		t.Fatalf("CodeOf(nil) = %q", got)
	}
}

func TestSideHelpers(t *testing.T) {
	if White.Opponent() != Black || Black.Opponent() != White {
		t.Fatalf("Opponent mismatch")
	}
	for i := 0; i < 2; i++ {
		if SideAt(i).Index() != i {
			t.Fatalf("SideAt(%d).Index() != %d", i, i)
		}
	}
	if Side("red").Valid() {
		t.Fatalf("red should not be a valid side")
	}
}
