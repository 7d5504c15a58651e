package session

import (
	"github.com/park285/chess-session-server/internal/domain"
	"github.com/park285/chess-session-server/pkg/protocol"
)

func playersToProto(ps []domain.Player) []protocol.Player {
	out := make([]protocol.Player, 0, len(ps))
	for _, p := range ps {
		out = append(out, protocol.Player{Name: p.Name, Side: string(p.Side)})
	}
	return out
}

func movesToProto(ms []domain.MoveRecord) []protocol.Move {
	out := make([]protocol.Move, 0, len(ms))
	for _, m := range ms {
		out = append(out, protocol.Move{
			Sequence:     m.Sequence,
			Side:         string(m.Side),
			MoveNotation: m.Notation,
			UCI:          m.UCI,
		})
	}
	return out
}

func finishToProto(f *domain.Finish) protocol.GameFinished {
	if f == nil {
		return protocol.GameFinished{}
	}
	return protocol.GameFinished{Reason: string(f.Reason), WinnerSide: string(f.Winner)}
}
