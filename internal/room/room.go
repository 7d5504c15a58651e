package room

import (
	"fmt"
	"sync"
	"time"

	"github.com/park285/chess-session-server/internal/domain"
	"github.com/park285/chess-session-server/pkg/protocol"
)

// Peer is a connection that can occupy a slot or watch a room.
type Peer interface {
	ID() string
	Name() string
	Send(env protocol.Envelope) bool
}

// Slot is one player position. A slot with a token but no peer has been
// vacated by a disconnect and is reserved for that player.
type Slot struct {
	Peer  Peer
	Name  string
	Token string
}

func (s Slot) Empty() bool    { return s.Token == "" }
func (s Slot) Vacated() bool  { return s.Token != "" && s.Peer == nil }
func (s Slot) Occupied() bool { return s.Peer != nil }

// Room is a single chess session. Every method except Lock/Unlock and the
// immutable ID/CreatedAt fields requires the caller to hold the room lock.
type Room struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	status     domain.Status
	slots      [2]Slot
	turn       domain.Side
	history    []domain.MoveRecord
	spectators map[string]Peer
	finish     *domain.Finish
	lastActive time.Time
	discarded  bool

	episode    uint64
	pausedSide domain.Side
	graceTimer *time.Timer
	graceUntil time.Time
}

func newRoom(id string, now time.Time) *Room {
	return &Room{
		ID:         id,
		CreatedAt:  now,
		status:     domain.StatusWaiting,
		turn:       domain.White,
		spectators: make(map[string]Peer),
		lastActive: now,
	}
}

func (r *Room) Lock()   { r.mu.Lock() }
func (r *Room) Unlock() { r.mu.Unlock() }

func (r *Room) Status() domain.Status { return r.status }

func (r *Room) SetStatus(s domain.Status, now time.Time) {
	r.status = s
	r.lastActive = now
}

func (r *Room) SideToMove() domain.Side { return r.turn }

func (r *Room) LastActive() time.Time { return r.lastActive }

func (r *Room) Touch(now time.Time) { r.lastActive = now }

func (r *Room) Len() int { return len(r.history) }

func (r *Room) History() []domain.MoveRecord {
	out := make([]domain.MoveRecord, len(r.history))
	copy(out, r.history)
	return out
}

// MovesAfter returns records with sequence greater than lastSeen, in order.
// Negative lastSeen is treated as zero.
func (r *Room) MovesAfter(lastSeen int) ([]domain.MoveRecord, error) {
	if lastSeen < 0 {
		lastSeen = 0
	}
	if lastSeen > len(r.history) {
		return nil, domain.Errorf(domain.ErrInvalidState,
			"last seen sequence %d is ahead of history length %d", lastSeen, len(r.history))
	}
	out := make([]domain.MoveRecord, len(r.history)-lastSeen)
	copy(out, r.history[lastSeen:])
	return out, nil
}

// UCIMoves is the position as UCI moves from the start.
func (r *Room) UCIMoves() []string {
	out := make([]string, len(r.history))
	for i, rec := range r.history {
		out[i] = rec.UCI
	}
	return out
}

// Append records an accepted move for the side to move and flips the turn.
func (r *Room) Append(san, uci string, at time.Time) domain.MoveRecord {
	rec := domain.MoveRecord{
		Sequence: len(r.history) + 1,
		Side:     r.turn,
		Notation: san,
		UCI:      uci,
		At:       at,
	}
	r.history = append(r.history, rec)
	r.turn = r.turn.Opponent()
	r.lastActive = at
	return rec
}

func (r *Room) Slot(side domain.Side) Slot { return r.slots[side.Index()] }

// SideOf reports the side currently occupied by peerID.
func (r *Room) SideOf(peerID string) (domain.Side, bool) {
	for i, s := range r.slots {
		if s.Peer != nil && s.Peer.ID() == peerID {
			return domain.SideAt(i), true
		}
	}
	return "", false
}

// Join seats peer in the first never-used slot, white before black. full is
// true when both slots are now taken.
func (r *Room) Join(peer Peer, token string, now time.Time) (side domain.Side, full bool, err error) {
	if r.discarded {
		return "", false, domain.Errorf(domain.ErrRoomNotFound, "room %s does not exist", r.ID)
	}
	if r.status == domain.StatusFinished {
		return "", false, domain.Errorf(domain.ErrInvalidState, "room %s has finished", r.ID)
	}
	if _, seated := r.SideOf(peer.ID()); seated {
		return "", false, domain.Errorf(domain.ErrInvalidState, "already seated in room %s", r.ID)
	}
	idx := -1
	for i, s := range r.slots {
		if s.Empty() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false, domain.Errorf(domain.ErrRoomFull, "room %s already has two players", r.ID)
	}
	r.slots[idx] = Slot{Peer: peer, Name: peer.Name(), Token: token}
	delete(r.spectators, peer.ID())
	r.lastActive = now
	return domain.SideAt(idx), !r.slots[0].Empty() && !r.slots[1].Empty(), nil
}

// Vacate empties the peer reference of side but keeps the seat reserved.
func (r *Room) Vacate(side domain.Side) {
	r.slots[side.Index()].Peer = nil
}

// Reseat puts peer back into a vacated slot.
func (r *Room) Reseat(side domain.Side, peer Peer) {
	r.slots[side.Index()].Peer = peer
}

// Occupants returns the connected players.
func (r *Room) Occupants() []Peer {
	var out []Peer
	for _, s := range r.slots {
		if s.Peer != nil {
			out = append(out, s.Peer)
		}
	}
	return out
}

// Players lists every reserved seat, white first.
func (r *Room) Players() []domain.Player {
	var out []domain.Player
	for i, s := range r.slots {
		if !s.Empty() {
			out = append(out, domain.Player{Name: s.Name, Side: domain.SideAt(i)})
		}
	}
	return out
}

func (r *Room) AddSpectator(p Peer) { r.spectators[p.ID()] = p }

func (r *Room) RemoveSpectator(id string) bool {
	if _, ok := r.spectators[id]; !ok {
		return false
	}
	delete(r.spectators, id)
	return true
}

func (r *Room) IsSpectator(id string) bool {
	_, ok := r.spectators[id]
	return ok
}

func (r *Room) Spectators() []Peer {
	out := make([]Peer, 0, len(r.spectators))
	for _, p := range r.spectators {
		out = append(out, p)
	}
	return out
}

// Broadcast queues env for every connected player and spectator except skip.
// It returns the number of peers whose queue rejected the envelope.
func (r *Room) Broadcast(env protocol.Envelope, skip string) int {
	dropped := 0
	send := func(p Peer) {
		if p == nil || p.ID() == skip {
			return
		}
		if !p.Send(env) {
			dropped++
		}
	}
	for _, s := range r.slots {
		send(s.Peer)
	}
	for _, p := range r.spectators {
		send(p)
	}
	return dropped
}

// BeginPause moves the room to PAUSED and arms the grace timer. fire receives
// the episode it was armed for.
func (r *Room) BeginPause(side domain.Side, grace time.Duration, now time.Time, fire func(episode uint64)) uint64 {
	r.stopTimer()
	r.episode++
	ep := r.episode
	r.status = domain.StatusPaused
	r.pausedSide = side
	r.graceUntil = now.Add(grace)
	r.lastActive = now
	r.graceTimer = time.AfterFunc(grace, func() { fire(ep) })
	return ep
}

// EndPause cancels the grace timer and invalidates its episode.
func (r *Room) EndPause() {
	r.stopTimer()
	r.episode++
	r.pausedSide = ""
	r.graceUntil = time.Time{}
}

// PauseEpisode is the current episode and the side that left.
func (r *Room) PauseEpisode() (uint64, domain.Side) { return r.episode, r.pausedSide }

func (r *Room) GraceUntil() time.Time { return r.graceUntil }

func (r *Room) stopTimer() {
	if r.graceTimer != nil {
		r.graceTimer.Stop()
		r.graceTimer = nil
	}
}

// Discard marks a room that is being dropped without a result, such as a
// WAITING room whose creator left. Callers that locked it afterwards must
// treat it as not found.
func (r *Room) Discard(now time.Time) {
	r.EndPause()
	r.discarded = true
	r.lastActive = now
}

func (r *Room) Discarded() bool { return r.discarded }

// Finish makes the room terminal. It returns false when the room had already finished.
func (r *Room) Finish(reason domain.FinishReason, winner domain.Side, now time.Time) bool {
	if r.status == domain.StatusFinished {
		return false
	}
	r.EndPause()
	r.status = domain.StatusFinished
	r.finish = &domain.Finish{Reason: reason, Winner: winner, At: now}
	r.lastActive = now
	return true
}

func (r *Room) Result() *domain.Finish {
	if r.finish == nil {
		return nil
	}
	f := *r.finish
	return &f
}

// CheckInvariants reports the first structural inconsistency found.
func (r *Room) CheckInvariants() error {
	if a, b := r.slots[0].Peer, r.slots[1].Peer; a != nil && b != nil && a.ID() == b.ID() {
		return fmt.Errorf("peer %s occupies both slots", a.ID())
	}
	for i, rec := range r.history {
		if rec.Sequence != i+1 {
			return fmt.Errorf("history[%d] has sequence %d", i, rec.Sequence)
		}
		want := domain.White
		if i%2 == 1 {
			want = domain.Black
		}
		if rec.Side != want {
			return fmt.Errorf("history[%d] moved by %s, want %s", i, rec.Side, want)
		}
	}
	wantTurn := domain.White
	if len(r.history)%2 == 1 {
		wantTurn = domain.Black
	}
	if r.turn != wantTurn {
		return fmt.Errorf("side to move %s after %d moves", r.turn, len(r.history))
	}

	white, black := r.slots[0], r.slots[1]
	switch r.status {
	case domain.StatusWaiting:
		if white.Empty() || !black.Empty() || len(r.history) > 0 {
			return fmt.Errorf("waiting room must have only white seated and no moves")
		}
	case domain.StatusActive:
		if !white.Occupied() || !black.Occupied() {
			return fmt.Errorf("active room with a missing player")
		}
	case domain.StatusPaused:
		vacant := 0
		for _, s := range r.slots {
			if s.Empty() {
				return fmt.Errorf("paused room with a never-filled slot")
			}
			if s.Vacated() {
				vacant++
			}
		}
		if vacant != 1 {
			return fmt.Errorf("paused room with %d vacated slots", vacant)
		}
	}
	return nil
}
