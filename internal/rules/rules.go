package rules

import (
	"context"
	"errors"
	"fmt"
)

// Terminal is the game-over classification reported by an Engine.
type Terminal string

const (
	None      Terminal = "None"
	Checkmate Terminal = "Checkmate"
	Stalemate Terminal = "Stalemate"
	Draw      Terminal = "Draw"
)

var (
	// ErrIllegal means the notation did not decode to a legal move.
	ErrIllegal = errors.New("illegal move")
	// ErrUnavailable means the engine could not be consulted.
	ErrUnavailable = errors.New("rules engine unavailable")
	// ErrGameOver means the position is already terminal. It matches ErrIllegal.
	ErrGameOver = fmt.Errorf("%w: game is over", ErrIllegal)
)

// Position is the game reached by playing Moves (UCI) from the standard start.
type Position struct {
	Moves []string `json:"moves"`
}

// Move is a validated move in both notations.
type Move struct {
	SAN string `json:"san"`
	UCI string `json:"uci"`
}

// Engine validates moves and classifies positions. Implementations must be
// safe for concurrent use.
type Engine interface {
	Validate(ctx context.Context, pos Position, notation string) (Move, error)
	TerminalStatus(ctx context.Context, pos Position) (Terminal, error)
}

// IsLegal reports whether notation is a legal move in pos.
func IsLegal(ctx context.Context, e Engine, pos Position, notation string) bool {
	_, err := e.Validate(ctx, pos, notation)
	return err == nil
}

// Append returns pos extended by mv without aliasing pos.Moves.
func (p Position) Append(mv Move) Position {
	moves := make([]string, len(p.Moves), len(p.Moves)+1)
	copy(moves, p.Moves)
	return Position{Moves: append(moves, mv.UCI)}
}
