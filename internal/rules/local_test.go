package rules

import (
	"context"
	"errors"
	"testing"
)

func TestLocalValidateSANAndUCI(t *testing.T) {
	eng := NewLocal()
	ctx := context.Background()

	mv, err := eng.Validate(ctx, Position{}, "e4")
	if err != nil {
		t.Fatalf("Validate e4: %v", err)
	}
	if mv.SAN != "e4" || mv.UCI != "e2e4" {
		t.Fatalf("unexpected move %+v", mv)
	}

	pos := Position{}.Append(mv)
	mv, err = eng.Validate(ctx, pos, "E7E5")
	if err != nil {
		t.Fatalf("Validate E7E5: %v", err)
	}
	if mv.SAN != "e5" || mv.UCI != "e7e5" {
		t.Fatalf("unexpected move %+v", mv)
	}
}

func TestLocalValidateIllegal(t *testing.T) {
	eng := NewLocal()
	ctx := context.Background()
	pos := Position{Moves: []string{"e2e4"}}

	for _, notation := range []string{"", "e4", "Ke2", "zz9"} {
		if _, err := eng.Validate(ctx, pos, notation); !errors.Is(err, ErrIllegal) {
			t.Fatalf("Validate(%q) err = %v, want ErrIllegal", notation, err)
		}
	}
	if IsLegal(ctx, eng, pos, "e4") {
		t.Fatalf("black cannot play e4 after 1.e4")
	}
	if !IsLegal(ctx, eng, pos, "Nf6") {
		t.Fatalf("Nf6 should be legal")
	}
}

func TestLocalTerminalStatus(t *testing.T) {
	eng := NewLocal()
	ctx := context.Background()

	foolsMate := Position{Moves: []string{"f2f3", "e7e5", "g2g4", "d8h4"}}
	if got, err := eng.TerminalStatus(ctx, foolsMate); err != nil || got != Checkmate {
		t.Fatalf("TerminalStatus(fool's mate) = %v, %v", got, err)
	}
	if got, err := eng.TerminalStatus(ctx, Position{Moves: []string{"e2e4"}}); err != nil || got != None {
		t.Fatalf("TerminalStatus(1.e4) = %v, %v", got, err)
	}
	if _, err := eng.Validate(ctx, foolsMate, "a3"); !errors.Is(err, ErrGameOver) || !errors.Is(err, ErrIllegal) {
		t.Fatalf("moves after mate must be rejected as game over, got %v", err)
	}
}

func TestLocalReplayError(t *testing.T) {
	eng := NewLocal()
	if _, err := eng.TerminalStatus(context.Background(), Position{Moves: []string{"e2e5"}}); err == nil {
		t.Fatalf("expected replay error")
	}
}

func TestPositionAppendDoesNotAlias(t *testing.T) {
	base := Position{Moves: make([]string, 1, 4)}
	base.Moves[0] = "e2e4"
	a := base.Append(Move{UCI: "e7e5"})
	b := base.Append(Move{UCI: "c7c5"})
	if a.Moves[1] != "e7e5" || b.Moves[1] != "c7c5" {
		t.Fatalf("append aliased: %v %v", a.Moves, b.Moves)
	}
}
