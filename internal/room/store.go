package room

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-session-server/internal/domain"
	"github.com/park285/chess-session-server/internal/obslog"
)

const maxCreateAttempts = 8

var ErrIDSpaceExhausted = errors.New("could not allocate a unique room id")

// Reserver claims a room id outside this process, e.g. in a shared directory.
type Reserver interface {
	Reserve(ctx context.Context, roomID string) (bool, error)
}

// Store owns the live rooms. Its map lock is never held while a room lock is taken.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	newID    func() (string, error)
	reserver Reserver
	now      func() time.Time
}

type Option func(*Store)

func WithReserver(r Reserver) Option { return func(s *Store) { s.reserver = r } }

func WithIDGenerator(fn func() (string, error)) Option { return func(s *Store) { s.newID = fn } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func NewStore(opts ...Option) *Store {
	s := &Store{
		rooms: make(map[string]*Room),
		newID: codeGen,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create allocates a WAITING room under an id unused both locally and in the reserver.
func (s *Store) Create(ctx context.Context) (*Room, error) {
	r, err := s.CreateLocked(ctx)
	if err != nil {
		return nil, err
	}
	r.Unlock()
	return r, nil
}

// CreateLocked is Create but returns the room locked, so the caller can seat
// the creator before any other caller can observe the room.
func (s *Store) CreateLocked(ctx context.Context) (*Room, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return nil, fmt.Errorf("generate room id: %w", err)
		}
		if s.exists(id) {
			continue
		}
		if s.reserver != nil {
			ok, rerr := s.reserver.Reserve(ctx, id)
			if rerr != nil {
				obslog.L().Warn("room_reserve_failed", zap.String("room_id", id), zap.Error(rerr))
			} else if !ok {
				continue
			}
		}

		r := newRoom(id, s.now())
		r.Lock()
		s.mu.Lock()
		if _, taken := s.rooms[id]; taken {
			s.mu.Unlock()
			r.Unlock()
			continue
		}
		s.rooms[id] = r
		s.mu.Unlock()
		return r, nil
	}
	return nil, ErrIDSpaceExhausted
}

func (s *Store) exists(id string) bool {
	s.mu.RLock()
	_, ok := s.rooms[id]
	s.mu.RUnlock()
	return ok
}

func (s *Store) Find(id string) (*Room, error) {
	id = strings.TrimSpace(id)
	s.mu.RLock()
	r, ok := s.rooms[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.Errorf(domain.ErrRoomNotFound, "room %s does not exist", id)
	}
	return r, nil
}

// Remove deletes the room if it is still the one stored under its id.
func (s *Store) Remove(r *Room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.rooms[r.ID]; ok && cur == r {
		delete(s.rooms, r.ID)
		return true
	}
	return false
}

// Snapshot returns the live rooms ordered by creation time.
func (s *Store) Snapshot() []*Room {
	s.mu.RLock()
	out := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// codeGen returns "R-" + 6 upper alnum.
func codeGen() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return "R-" + string(b), nil
}
