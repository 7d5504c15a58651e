package registry

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/park285/chess-session-server/internal/domain"
	"github.com/park285/chess-session-server/internal/obslog"
	"github.com/park285/chess-session-server/pkg/protocol"
)

const maxNameRunes = 32

// Sink accepts outbound envelopes without blocking. It returns false when the
// envelope was dropped.
type Sink interface {
	Push(env protocol.Envelope) bool
}

// Client is one live connection.
type Client struct {
	id          string
	sink        Sink
	connectedAt time.Time
	leaving     atomic.Bool

	mu     sync.Mutex
	name   string
	roomID string
}

func (c *Client) ID() string { return c.id }

func (c *Client) ConnectedAt() time.Time { return c.connectedAt }

func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// RoomID is the room the client is seated in or watching, or "".
func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Client) SetRoom(roomID string) {
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
}

// ClearRoom drops the room reference only if it still points at roomID.
func (c *Client) ClearRoom(roomID string) {
	c.mu.Lock()
	if c.roomID == roomID {
		c.roomID = ""
	}
	c.mu.Unlock()
}

// Send queues env for delivery. It never blocks.
func (c *Client) Send(env protocol.Envelope) bool {
	if c == nil || c.sink == nil {
		return false
	}
	return c.sink.Push(env)
}

// Registry tracks live clients by connection id.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client

	hookMu       sync.RWMutex
	onDisconnect func(*Client)
}

func New() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// OnDisconnect installs the hook run by Unregister for clients holding a room reference.
func (r *Registry) OnDisconnect(fn func(*Client)) {
	r.hookMu.Lock()
	r.onDisconnect = fn
	r.hookMu.Unlock()
}

func (r *Registry) Register(connID string, sink Sink) (*Client, error) {
	connID = strings.TrimSpace(connID)
	if connID == "" {
		return nil, domain.Errorf(domain.ErrInvalidState, "empty connection id")
	}
	c := &Client{id: connID, sink: sink, connectedAt: time.Now()}

	r.mu.Lock()
	if _, exists := r.clients[connID]; exists {
		r.mu.Unlock()
		return nil, domain.Errorf(domain.ErrDuplicateConnection, "connection %s is already registered", connID)
	}
	r.clients[connID] = c
	r.mu.Unlock()

	obslog.L().Debug("client_registered", zap.String("conn_id", connID))
	return c, nil
}

// SetName assigns the display name once.
func (r *Registry) SetName(connID, name string) error {
	c, ok := r.Get(connID)
	if !ok {
		return domain.Errorf(domain.ErrInvalidState, "connection %s is not registered", connID)
	}
	name = normalizeName(name)
	if name == "" {
		return domain.Errorf(domain.ErrInvalidState, "display name must not be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.name != "" {
		return domain.Errorf(domain.ErrInvalidState, "display name is already set")
	}
	c.name = name
	return nil
}

func (r *Registry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	c, ok := r.clients[connID]
	r.mu.RUnlock()
	return c, ok
}

// Unregister removes the client. A client still holding a room reference is
// reported to the disconnect hook first. Repeated calls are no-ops and
// return false.
func (r *Registry) Unregister(connID string) bool {
	c, ok := r.Get(connID)
	if !ok || !c.leaving.CompareAndSwap(false, true) {
		return false
	}

	if c.RoomID() != "" {
		r.hookMu.RLock()
		hook := r.onDisconnect
		r.hookMu.RUnlock()
		if hook != nil {
			hook(c)
		}
	}

	r.mu.Lock()
	if cur, ok := r.clients[connID]; ok && cur == c {
		delete(r.clients, connID)
	}
	r.mu.Unlock()

	obslog.L().Debug("client_unregistered", zap.String("conn_id", connID))
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) <= maxNameRunes {
		return name
	}
	runes := []rune(name)
	return strings.TrimSpace(string(runes[:maxNameRunes]))
}
