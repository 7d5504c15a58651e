package registry

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/park285/chess-session-server/internal/domain"
	"github.com/park285/chess-session-server/pkg/protocol"
)

type recordingSink struct {
	mu   sync.Mutex
	envs []protocol.Envelope
}

func (s *recordingSink) Push(env protocol.Envelope) bool {
	s.mu.Lock()
	s.envs = append(s.envs, env)
	s.mu.Unlock()
	return true
}

func TestRegisterDuplicate(t *testing.T) {
	r := New()
	if _, err := r.Register("c1", &recordingSink{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := r.Register("c1", &recordingSink{})
	if !errors.Is(err, domain.ErrDuplicateConnection) {
		t.Fatalf("expected DuplicateConnection, got %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d", r.Len())
	}
}

func TestSetNameOnce(t *testing.T) {
	r := New()
	c, _ := r.Register("c1", nil)

	if err := r.SetName("c1", "  "); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("empty name: %v", err)
	}
	if err := r.SetName("c1", " alice "); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	if err := r.SetName("c1", "bob"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second SetName: %v", err)
	}
	if c.Name() != "alice" {
		t.Fatalf("Name = %q", c.Name())
	}
	if err := r.SetName("ghost", "x"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("unknown conn: %v", err)
	}
}

func TestSetNameTruncates(t *testing.T) {
	r := New()
	c, _ := r.Register("c1", nil)
	if err := r.SetName("c1", strings.Repeat("가", 40)); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	if got := len([]rune(c.Name())); got != maxNameRunes {
		t.Fatalf("name runes = %d", got)
	}
}

func TestUnregisterRunsHookOnceForSeatedClient(t *testing.T) {
	r := New()
	var calls atomic.Int32
	var seenRoom string
	r.OnDisconnect(func(c *Client) {
		calls.Add(1)
		seenRoom = c.RoomID()
		if _, ok := r.Get(c.ID()); !ok {
			t.Errorf("client removed before hook ran")
		}
	})

	c, _ := r.Register("c1", nil)
	c.SetRoom("R-ABCDEF")
	r.Unregister("c1")
	r.Unregister("c1")

	if calls.Load() != 1 || seenRoom != "R-ABCDEF" {
		t.Fatalf("hook calls=%d room=%q", calls.Load(), seenRoom)
	}
	if _, ok := r.Get("c1"); ok {
		t.Fatalf("client still registered")
	}
}

func TestUnregisterSkipsHookWithoutRoom(t *testing.T) {
	r := New()
	var calls atomic.Int32
	r.OnDisconnect(func(*Client) { calls.Add(1) })
	r.Register("c1", nil)
	r.Unregister("c1")
	r.Unregister("never-registered")
	if calls.Load() != 0 {
		t.Fatalf("hook should not run, calls=%d", calls.Load())
	}
}

func TestClearRoomOnlyMatching(t *testing.T) {
	c := &Client{id: "c1"}
	c.SetRoom("R1")
	c.ClearRoom("R2")
	if c.RoomID() != "R1" {
		t.Fatalf("ClearRoom cleared a different room")
	}
	c.ClearRoom("R1")
	if c.RoomID() != "" {
		t.Fatalf("ClearRoom did not clear")
	}
}

func TestSendUsesSink(t *testing.T) {
	sink := &recordingSink{}
	r := New()
	c, _ := r.Register("c1", sink)
	if !c.Send(protocol.NewPush(protocol.PushOpponentJoined, nil)) {
		t.Fatalf("Send returned false")
	}
	if len(sink.envs) != 1 || sink.envs[0].Type != protocol.PushOpponentJoined {
		t.Fatalf("sink got %+v", sink.envs)
	}
	var nilClient *Client
	if nilClient.Send(protocol.Envelope{}) {
		t.Fatalf("nil client Send should be false")
	}
}
