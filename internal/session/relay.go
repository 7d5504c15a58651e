package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-session-server/internal/domain"
	"github.com/park285/chess-session-server/internal/obslog"
	"github.com/park285/chess-session-server/internal/room"
	"github.com/park285/chess-session-server/internal/rules"
	"github.com/park285/chess-session-server/pkg/protocol"
)

// SubmitMove validates and applies a move for the caller. Checks run in a
// fixed order and any rejection leaves the room untouched.
func (e *Engine) SubmitMove(ctx context.Context, connID, roomID, notation string) (seq int, err error) {
	defer e.track(protocol.TypeSubmitMove, &err)

	r, err := e.lockRoom(roomID)
	if err != nil {
		return 0, err
	}
	defer r.Unlock()

	if st := r.Status(); st != domain.StatusActive {
		return 0, e.reject(domain.ErrInvalidState, "state.not_active", map[string]any{"RoomID": r.ID, "Status": st})
	}
	side, seated := r.SideOf(connID)
	if !seated {
		return 0, e.reject(domain.ErrNotAPlayer, "errors.NotAPlayer", map[string]any{"RoomID": r.ID})
	}
	if side != r.SideToMove() {
		return 0, e.reject(domain.ErrNotYourTurn, "errors.NotYourTurn", map[string]any{"SideToMove": r.SideToMove()})
	}

	pos := rules.Position{Moves: r.UCIMoves()}
	mv, err := e.validate(ctx, pos, notation)
	if err != nil {
		if errors.Is(err, rules.ErrGameOver) {
			// A terminal check missed after the previous move is settled now.
			e.resolveTerminalLocked(ctx, r, pos, side.Opponent())
			if r.Status() == domain.StatusFinished {
				return 0, e.reject(domain.ErrInvalidState, "state.room_finished", map[string]any{"RoomID": r.ID})
			}
		}
		if errors.Is(err, rules.ErrIllegal) {
			return 0, e.reject(domain.ErrIllegalMove, "errors.IllegalMove", map[string]any{"Move": strings.TrimSpace(notation)})
		}
		obslog.L().Warn("rules_validate_failed", zap.String("room_id", r.ID), zap.Error(err))
		rej := e.reject(domain.ErrIllegalMove, "rules.unavailable", nil)
		rej.Retryable = true
		return 0, rej
	}

	rec := r.Append(mv.SAN, mv.UCI, e.now())
	dropped := r.Broadcast(protocol.NewPush(protocol.PushMoveBroadcast, protocol.MoveBroadcast{
		Sequence:       rec.Sequence,
		MoveNotation:   rec.Notation,
		UCI:            rec.UCI,
		SideToMoveNext: string(r.SideToMove()),
	}), connID)
	e.metrics.OutboxDropped(dropped)
	e.metrics.MoveAccepted()

	obslog.L().Info("move_accepted",
		zap.String("room_id", r.ID),
		zap.Int("seq", rec.Sequence),
		zap.String("side", string(rec.Side)),
		zap.String("san", rec.Notation),
		zap.String("uci", rec.UCI),
	)

	if e.checkLocked(r) {
		return rec.Sequence, nil
	}
	e.resolveTerminalLocked(ctx, r, pos.Append(mv), side)
	if r.Status() == domain.StatusActive {
		e.feed.Publish(e.listingLocked(r))
	}
	return rec.Sequence, nil
}

func (e *Engine) validate(ctx context.Context, pos rules.Position, notation string) (rules.Move, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.RulesTimeout)
	defer cancel()
	start := time.Now()
	mv, err := e.rules.Validate(ctx, pos, notation)
	e.metrics.ObserveRules(time.Since(start).Seconds())
	return mv, err
}

// resolveTerminalLocked finishes the room when the position after the mover's
// move is checkmate, stalemate or a draw. Engine failures leave the game running.
func (e *Engine) resolveTerminalLocked(ctx context.Context, r *room.Room, pos rules.Position, mover domain.Side) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.RulesTimeout)
	defer cancel()
	start := time.Now()
	status, err := e.rules.TerminalStatus(ctx, pos)
	e.metrics.ObserveRules(time.Since(start).Seconds())
	if err != nil {
		obslog.L().Warn("rules_terminal_failed", zap.String("room_id", r.ID), zap.Error(err))
		return
	}
	switch status {
	case rules.Checkmate:
		e.finishLocked(r, domain.ReasonCheckmate, mover)
	case rules.Stalemate:
		e.finishLocked(r, domain.ReasonStalemate, "")
	case rules.Draw:
		e.finishLocked(r, domain.ReasonDraw, "")
	}
}
