package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/chess-session-server/internal/domain"
	"github.com/park285/chess-session-server/pkg/protocol"
)

type fakePeer struct {
	id, name string
	full     bool

	mu   sync.Mutex
	envs []protocol.Envelope
}

func (p *fakePeer) ID() string   { return p.id }
func (p *fakePeer) Name() string { return p.name }
func (p *fakePeer) Send(env protocol.Envelope) bool {
	if p.full {
		return false
	}
	p.mu.Lock()
	p.envs = append(p.envs, env)
	p.mu.Unlock()
	return true
}

func newPeer(id string) *fakePeer { return &fakePeer{id: id, name: "name-" + id} }

func mustRoom(t *testing.T) *Room {
	t.Helper()
	r, err := NewStore().Create(context.Background())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return r
}

func TestJoinOrderWhiteThenBlack(t *testing.T) {
	r := mustRoom(t)
	now := time.Now()

	side, full, err := r.Join(newPeer("a"), "tok-a", now)
	if err != nil || side != domain.White || full {
		t.Fatalf("first join = %v %v %v", side, full, err)
	}
	side, full, err = r.Join(newPeer("b"), "tok-b", now)
	if err != nil || side != domain.Black || !full {
		t.Fatalf("second join = %v %v %v", side, full, err)
	}

	before := r.Players()
	_, _, err = r.Join(newPeer("c"), "tok-c", now)
	if !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("third join err = %v", err)
	}
	after := r.Players()
	if fmt.Sprint(before) != fmt.Sprint(after) {
		t.Fatalf("occupants changed: %v -> %v", before, after)
	}
}

func TestJoinRejectsSeatedPeerAndFinishedRoom(t *testing.T) {
	r := mustRoom(t)
	a := newPeer("a")
	if _, _, err := r.Join(a, "t", time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, _, err := r.Join(a, "t2", time.Now()); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("rejoin err = %v", err)
	}
	r.Finish(domain.ReasonAborted, "", time.Now())
	if _, _, err := r.Join(newPeer("b"), "t", time.Now()); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("join finished err = %v", err)
	}
}

func TestVacatedSlotStaysReserved(t *testing.T) {
	r := mustRoom(t)
	r.Join(newPeer("a"), "ta", time.Now())
	r.Join(newPeer("b"), "tb", time.Now())
	r.Vacate(domain.Black)

	if _, _, err := r.Join(newPeer("c"), "tc", time.Now()); !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("join into vacated slot err = %v", err)
	}
	if !r.Slot(domain.Black).Vacated() || r.Slot(domain.Black).Token != "tb" {
		t.Fatalf("slot not reserved: %+v", r.Slot(domain.Black))
	}
	if got := len(r.Occupants()); got != 1 {
		t.Fatalf("occupants = %d", got)
	}
	if got := len(r.Players()); got != 2 {
		t.Fatalf("players = %d", got)
	}
}

func TestAppendSequenceAndTurn(t *testing.T) {
	r := mustRoom(t)
	now := time.Now()
	moves := [][2]string{{"e4", "e2e4"}, {"e5", "e7e5"}, {"Nf3", "g1f3"}}
	for i, mv := range moves {
		rec := r.Append(mv[0], mv[1], now)
		if rec.Sequence != i+1 {
			t.Fatalf("sequence = %d, want %d", rec.Sequence, i+1)
		}
	}
	if r.SideToMove() != domain.Black {
		t.Fatalf("side to move = %s", r.SideToMove())
	}
	if got := r.UCIMoves(); len(got) != 3 || got[2] != "g1f3" {
		t.Fatalf("UCIMoves = %v", got)
	}
}

func TestMovesAfter(t *testing.T) {
	r := mustRoom(t)
	for _, mv := range []string{"e2e4", "e7e5", "g1f3", "b8c6"} {
		r.Append(mv, mv, time.Now())
	}
	cases := []struct {
		lastSeen int
		want     []int
		wantErr  bool
	}{
		{lastSeen: -3, want: []int{1, 2, 3, 4}},
		{lastSeen: 0, want: []int{1, 2, 3, 4}},
		{lastSeen: 2, want: []int{3, 4}},
		{lastSeen: 4, want: []int{}},
		{lastSeen: 5, wantErr: true},
	}
	for _, tc := range cases {
		got, err := r.MovesAfter(tc.lastSeen)
		if tc.wantErr {
			if !errors.Is(err, domain.ErrInvalidState) {
				t.Fatalf("MovesAfter(%d) err = %v", tc.lastSeen, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("MovesAfter(%d): %v", tc.lastSeen, err)
		}
		if len(got) != len(tc.want) {
			t.Fatalf("MovesAfter(%d) len = %d, want %d", tc.lastSeen, len(got), len(tc.want))
		}
		for i, rec := range got {
			if rec.Sequence != tc.want[i] {
				t.Fatalf("MovesAfter(%d)[%d] = %d", tc.lastSeen, i, rec.Sequence)
			}
		}
	}
}

func TestPauseEpisodeFiresOnce(t *testing.T) {
	r := mustRoom(t)
	r.Join(newPeer("a"), "ta", time.Now())
	r.Join(newPeer("b"), "tb", time.Now())
	r.SetStatus(domain.StatusActive, time.Now())

	var fired atomic.Int32
	var firedEp atomic.Uint64
	fire := func(ep uint64) {
		r.Lock()
		defer r.Unlock()
		cur, _ := r.PauseEpisode()
		if r.Status() == domain.StatusPaused && cur == ep {
			fired.Add(1)
			firedEp.Store(ep)
			r.Finish(domain.ReasonForfeit, domain.White, time.Now())
		}
	}

	r.Lock()
	r.Vacate(domain.Black)
	first := r.BeginPause(domain.Black, 20*time.Millisecond, time.Now(), fire)
	r.Reseat(domain.Black, newPeer("b"))
	r.EndPause()
	r.SetStatus(domain.StatusActive, time.Now())
	r.Vacate(domain.Black)
	second := r.BeginPause(domain.Black, 20*time.Millisecond, time.Now(), fire)
	r.Unlock()

	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 1 {
		t.Fatalf("fired %d times", fired.Load())
	}
	if firedEp.Load() != second || first == second {
		t.Fatalf("fired for episode %d, first=%d second=%d", firedEp.Load(), first, second)
	}
	r.Lock()
	defer r.Unlock()
	if res := r.Result(); res == nil || res.Reason != domain.ReasonForfeit {
		t.Fatalf("result = %+v", res)
	}
}

func TestCheckInvariants(t *testing.T) {
	r := mustRoom(t)
	a := newPeer("a")
	r.Join(a, "ta", time.Now())
	if err := r.CheckInvariants(); err != nil {
		t.Fatalf("waiting room: %v", err)
	}
	r.Join(newPeer("b"), "tb", time.Now())
	r.SetStatus(domain.StatusActive, time.Now())
	r.Append("e4", "e2e4", time.Now())
	if err := r.CheckInvariants(); err != nil {
		t.Fatalf("active room: %v", err)
	}

	r.slots[1].Peer = a
	if err := r.CheckInvariants(); err == nil {
		t.Fatalf("expected violation for duplicated peer")
	}
	r.slots[1].Peer = newPeer("b")
	r.turn = domain.White
	if err := r.CheckInvariants(); err == nil {
		t.Fatalf("expected violation for wrong side to move")
	}
}

func TestBroadcastSkipsAndCountsDrops(t *testing.T) {
	r := mustRoom(t)
	a, b := newPeer("a"), newPeer("b")
	watcher := &fakePeer{id: "s", full: true}
	r.Join(a, "ta", time.Now())
	r.Join(b, "tb", time.Now())
	r.AddSpectator(watcher)

	dropped := r.Broadcast(protocol.NewPush(protocol.PushMoveBroadcast, nil), "a")
	if dropped != 1 {
		t.Fatalf("dropped = %d", dropped)
	}
	if len(a.envs) != 0 || len(b.envs) != 1 {
		t.Fatalf("a=%d b=%d", len(a.envs), len(b.envs))
	}
}

func TestStoreCreateAvoidsCollisions(t *testing.T) {
	ids := []string{"R-AAAAAA", "R-AAAAAA", "R-BBBBBB"}
	var i int
	s := NewStore(WithIDGenerator(func() (string, error) {
		id := ids[i%len(ids)]
		i++
		return id, nil
	}))
	ctx := context.Background()
	r1, err := s.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := s.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if r1.ID != "R-AAAAAA" || r2.ID != "R-BBBBBB" {
		t.Fatalf("ids = %s, %s", r1.ID, r2.ID)
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d", s.Len())
	}
}

type denyReserver struct{ deny map[string]bool }

func (d denyReserver) Reserve(_ context.Context, id string) (bool, error) { return !d.deny[id], nil }

func TestStoreCreateHonorsReserver(t *testing.T) {
	ids := []string{"R-TAKEN1", "R-FREE01"}
	var i int
	s := NewStore(
		WithIDGenerator(func() (string, error) {
			id := ids[i]
			i++
			return id, nil
		}),
		WithReserver(denyReserver{deny: map[string]bool{"R-TAKEN1": true}}),
	)
	r, err := s.Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.ID != "R-FREE01" {
		t.Fatalf("id = %s", r.ID)
	}
}

func TestStoreCreateExhausted(t *testing.T) {
	s := NewStore(WithIDGenerator(func() (string, error) { return "R-SAME00", nil }))
	if _, err := s.Create(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(context.Background()); !errors.Is(err, ErrIDSpaceExhausted) {
		t.Fatalf("err = %v", err)
	}
}

func TestStoreFindRemove(t *testing.T) {
	s := NewStore()
	r, _ := s.Create(context.Background())
	got, err := s.Find(r.ID)
	if err != nil || got != r {
		t.Fatalf("Find = %v, %v", got, err)
	}
	if !s.Remove(r) || s.Remove(r) {
		t.Fatalf("Remove should succeed exactly once")
	}
	if _, err := s.Find(r.ID); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("Find after remove err = %v", err)
	}
}

func TestStoreConcurrentCreate(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Create(context.Background()); err != nil {
				t.Errorf("Create: %v", err)
			}
		}()
	}
	wg.Wait()
	if s.Len() != 64 {
		t.Fatalf("Len = %d", s.Len())
	}
	if got := len(s.Snapshot()[0].ID); got != 8 {
		t.Fatalf("id length = %d", got)
	}
}

func TestStoreCreateLockedHidesRoomUntilSeated(t *testing.T) {
	s := NewStore()
	r, err := s.CreateLocked(context.Background())
	if err != nil {
		t.Fatalf("CreateLocked: %v", err)
	}
	found, err := s.Find(r.ID)
	if err != nil || found != r {
		t.Fatalf("Find = %v, %v", found, err)
	}
	if found.mu.TryLock() {
		t.Fatalf("room returned by CreateLocked must be locked")
	}

	joined := make(chan domain.Side, 1)
	go func() {
		found.Lock()
		defer found.Unlock()
		side, _, _ := found.Join(newPeer("joiner"), "tok-j", time.Now())
		joined <- side
	}()

	side, full, err := r.Join(newPeer("creator"), "tok-c", time.Now())
	if err != nil || side != domain.White || full {
		t.Fatalf("creator join = %v %v %v", side, full, err)
	}
	r.Unlock()

	select {
	case side := <-joined:
		if side != domain.Black {
			t.Fatalf("joiner seated as %s", side)
		}
	case <-time.After(time.Second):
		t.Fatal("joiner never acquired the room")
	}
}
