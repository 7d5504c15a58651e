package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-session-server/internal/domain"
	"github.com/park285/chess-session-server/internal/obslog"
	"github.com/park285/chess-session-server/pkg/protocol"
)

// Run reaps finished and abandoned rooms until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.opts.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.Reap(e.now()); n > 0 {
				obslog.L().Debug("rooms_reaped", zap.Int("count", n), zap.Int("remaining", e.rooms.Len()))
			}
		}
	}
}

// Reap removes FINISHED rooms past their retention and WAITING rooms nobody
// joined within the waiting TTL. It returns the number of rooms removed.
func (e *Engine) Reap(now time.Time) int {
	removed := 0
	for _, r := range e.rooms.Snapshot() {
		r.Lock()
		switch {
		case r.Discarded():
		case r.Status() == domain.StatusFinished && now.Sub(r.LastActive()) >= e.opts.FinishedRetention:
			if e.rooms.Remove(r) {
				e.metrics.RoomStatus(string(domain.StatusFinished), "")
				e.feed.Release(r.ID)
				removed++
			}
		case r.Status() == domain.StatusWaiting && now.Sub(r.LastActive()) >= e.opts.WaitingTTL:
			dropped := r.Broadcast(protocol.NewPush(protocol.PushGameFinished, protocol.GameFinished{
				Reason: string(domain.ReasonAborted),
			}), "")
			e.metrics.OutboxDropped(dropped)
			e.discardLocked(r, "waiting_ttl")
			removed++
		}
		r.Unlock()
	}
	return removed
}
