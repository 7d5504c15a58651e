package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/park285/chess-session-server/internal/domain"
	"github.com/park285/chess-session-server/internal/obslog"
	"github.com/park285/chess-session-server/internal/registry"
	"github.com/park285/chess-session-server/internal/room"
	"github.com/park285/chess-session-server/pkg/protocol"
)

// OnDisconnect applies the room consequences of a lost connection. It is
// installed as the registry's disconnect hook.
func (e *Engine) OnDisconnect(c *registry.Client) {
	roomID := c.RoomID()
	if roomID == "" {
		return
	}
	r, err := e.lockRoom(roomID)
	if err != nil {
		c.ClearRoom(roomID)
		return
	}
	defer r.Unlock()
	defer c.ClearRoom(r.ID)

	if r.RemoveSpectator(c.ID()) {
		return
	}
	side, seated := r.SideOf(c.ID())
	if !seated {
		return
	}

	switch r.Status() {
	case domain.StatusWaiting:
		e.discardLocked(r, "creator_disconnected")

	case domain.StatusActive:
		r.Vacate(side)
		from := r.Status()
		r.BeginPause(side, e.opts.Grace, e.now(), func(ep uint64) { e.graceExpired(r, ep) })
		e.metrics.RoomStatus(string(from), string(domain.StatusPaused))
		dropped := r.Broadcast(protocol.NewPush(protocol.PushOpponentDisconnected, protocol.OpponentDisconnected{
			Side:         string(side),
			GraceSeconds: int(e.opts.Grace.Seconds()),
		}), c.ID())
		e.metrics.OutboxDropped(dropped)
		obslog.L().Info("room_paused",
			zap.String("room_id", r.ID),
			zap.String("side", string(side)),
			zap.Duration("grace", e.opts.Grace),
		)
		if e.checkLocked(r) {
			return
		}
		e.feed.Publish(e.listingLocked(r))

	case domain.StatusPaused:
		// Both players gone: nobody is left to award the game to.
		r.Vacate(side)
		e.finishLocked(r, domain.ReasonAborted, "")

	case domain.StatusFinished:
		r.Vacate(side)
	}
}

// graceExpired runs on the grace timer goroutine. Stale episodes are ignored,
// so a pause resolves at most once.
func (e *Engine) graceExpired(r *room.Room, episode uint64) {
	r.Lock()
	defer r.Unlock()
	cur, left := r.PauseEpisode()
	if r.Discarded() || r.Status() != domain.StatusPaused || cur != episode {
		return
	}
	obslog.L().Info("grace_expired", zap.String("room_id", r.ID), zap.String("side", string(left)))
	e.finishLocked(r, domain.ReasonForfeit, left.Opponent())
}

// Reconnect reseats a player into the slot it vacated, provided the room is
// still PAUSED, and returns every move after lastSeen.
func (e *Engine) Reconnect(ctx context.Context, connID, roomID, seatToken string, lastSeen int) (snap protocol.Snapshot, err error) {
	defer e.track(protocol.TypeReconnect, &err)

	c, err := e.client(connID)
	if err != nil {
		return snap, err
	}
	if cur := c.RoomID(); cur != "" && cur != roomID {
		return snap, e.reject(domain.ErrInvalidState, "state.already_in_room", map[string]any{"RoomID": cur})
	}
	r, err := e.lockRoom(roomID)
	if err != nil {
		return snap, err
	}
	defer r.Unlock()

	if st := r.Status(); st != domain.StatusPaused {
		return snap, e.reject(domain.ErrInvalidState, "state.not_paused", map[string]any{"RoomID": r.ID, "Status": st})
	}
	_, side := r.PauseEpisode()
	slot := r.Slot(side)
	if !slot.Vacated() || seatToken == "" || slot.Token != seatToken {
		return snap, e.reject(domain.ErrNotAPlayer, "errors.NotAPlayer", map[string]any{"RoomID": r.ID})
	}
	missed, err := r.MovesAfter(lastSeen)
	if err != nil {
		return snap, e.reject(domain.ErrInvalidState, "state.sequence_ahead", map[string]any{"LastSeen": lastSeen, "Length": r.Len()})
	}

	r.RemoveSpectator(c.ID())
	r.Reseat(side, c)
	r.EndPause()
	e.setStatusLocked(r, domain.StatusActive)
	c.SetRoom(r.ID)
	dropped := r.Broadcast(protocol.NewPush(protocol.PushOpponentReconnected, protocol.OpponentReconnected{
		Side: string(side),
	}), c.ID())
	e.metrics.OutboxDropped(dropped)
	e.metrics.Reconnected()
	obslog.L().Info("room_resumed",
		zap.String("room_id", r.ID),
		zap.String("side", string(side)),
		zap.Int("last_seen", lastSeen),
		zap.Int("missed", len(missed)),
	)

	if e.checkLocked(r) {
		return snap, e.reject(domain.ErrInvalidState, "state.room_finished", map[string]any{"RoomID": r.ID})
	}
	e.feed.Publish(e.listingLocked(r))

	snap = e.snapshotLocked(r, side, seatToken)
	snap.Missed = movesToProto(missed)
	return snap, nil
}
