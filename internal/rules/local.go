package rules

import (
	"context"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Local evaluates positions in-process with corentings/chess.
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (l *Local) Validate(_ context.Context, pos Position, notation string) (Move, error) {
	text := strings.TrimSpace(notation)
	if text == "" {
		return Move{}, fmt.Errorf("%w: empty notation", ErrIllegal)
	}
	game, err := replay(pos)
	if err != nil {
		return Move{}, err
	}
	if game.Outcome() != nchess.NoOutcome {
		return Move{}, ErrGameOver
	}

	notationSAN := nchess.AlgebraicNotation{}
	notationUCI := nchess.UCINotation{}
	before := game.Position()
	mv, err := notationSAN.Decode(before, text)
	if err != nil {
		mv, err = notationUCI.Decode(before, strings.ToLower(text))
		if err != nil {
			return Move{}, fmt.Errorf("%w: %s", ErrIllegal, text)
		}
	}
	if err := game.Move(mv, nil); err != nil {
		return Move{}, fmt.Errorf("%w: %s", ErrIllegal, text)
	}
	return Move{
		SAN: notationSAN.Encode(before, mv),
		UCI: strings.ToLower(notationUCI.Encode(before, mv)),
	}, nil
}

func (l *Local) TerminalStatus(_ context.Context, pos Position) (Terminal, error) {
	game, err := replay(pos)
	if err != nil {
		return None, err
	}
	return classify(game), nil
}

func classify(game *nchess.Game) Terminal {
	if game.Outcome() == nchess.NoOutcome {
		return None
	}
	switch game.Method() {
	case nchess.Checkmate:
		return Checkmate
	case nchess.Stalemate:
		return Stalemate
	default:
		return Draw
	}
}

// replay rebuilds the game from the start position.
func replay(pos Position) (*nchess.Game, error) {
	game := nchess.NewGame()
	for i, mv := range pos.Moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay ply %d (%s): %w", i+1, mv, err)
		}
	}
	return game, nil
}
