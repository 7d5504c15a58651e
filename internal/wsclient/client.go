package wsclient

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-session-server/internal/obslog"
	"github.com/park285/chess-session-server/pkg/protocol"
)

var (
	ErrDisconnected = errors.New("wsclient: connection lost")
	ErrClosed       = errors.New("wsclient: client closed")
)

type PushCallback func(env protocol.Envelope)

// ReconnectCallback reports the outcome of an automatic reconnect. snap is
// nil when the client was not seated in a room.
type ReconnectCallback func(snap *protocol.Snapshot, err error)

type Option func(*Client)

// WithReconnect enables redialing after an unexpected disconnect. The seat is
// reclaimed with the stored seat token and last seen sequence.
func WithReconnect(maxAttempts int) Option {
	return func(c *Client) { c.maxReconnectAttempts = maxAttempts }
}

func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// Client is a session protocol client over one websocket at a time.
type Client struct {
	url                  string
	dialTimeout          time.Duration
	maxReconnectAttempts int

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan protocol.Envelope
	name    string
	roomID  string
	token   string

	lastSeq atomic.Int64
	nextID  atomic.Uint64

	cbM      sync.RWMutex
	pushCbs  []PushCallback
	reconCbs []ReconnectCallback

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Dial connects to a chess-server websocket endpoint.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c := &Client{
		url:         url,
		dialTimeout: 10 * time.Second,
		pending:     make(map[string]chan protocol.Envelope),
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return err
	}
	conn.SetReadLimit(1 << 20)

	c.mu.Lock()
	if c.isStopping() {
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "close")
		return ErrClosed
	}
	c.conn = conn
	c.wg.Add(1)
	c.mu.Unlock()
	go c.listen(conn)
	return nil
}

func (c *Client) listen(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		var env protocol.Envelope
		if err := wsjson.Read(context.Background(), conn, &env); err != nil {
			c.dropConn(conn)
			if c.isStopping() {
				return
			}
			obslog.L().Debug("wsclient_read_failed", zap.Error(err))
			if c.maxReconnectAttempts > 0 {
				c.wg.Add(1)
				go c.reconnectLoop()
			}
			return
		}
		c.route(env)
	}
}

func (c *Client) route(env protocol.Envelope) {
	if env.ID != "" && (env.IsReply() || env.Type == protocol.TypeError) {
		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		delete(c.pending, env.ID)
		c.mu.Unlock()
		if ok {
			ch <- env
		}
		return
	}

	switch env.Type {
	case protocol.PushMoveBroadcast:
		var mb protocol.MoveBroadcast
		if env.Decode(&mb) == nil {
			c.observeSeq(mb.Sequence)
		}
	case protocol.PushGameFinished:
		c.setSeat("", "")
	}

	c.cbM.RLock()
	cbs := make([]PushCallback, len(c.pushCbs))
	copy(cbs, c.pushCbs)
	c.cbM.RUnlock()
	for _, cb := range cbs {
		cb(env)
	}
}

// dropConn forgets conn and fails every request still waiting on it.
func (c *Client) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	pending := c.pending
	c.pending = make(map[string]chan protocol.Envelope)
	c.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
	_ = conn.Close(websocket.StatusGoingAway, "bye")
}

func (c *Client) reconnectLoop() {
	defer c.wg.Done()
	for attempt := 1; attempt <= c.maxReconnectAttempts; attempt++ {
		select {
		case <-c.stopCh:
			return
		case <-time.After(backoffDuration(attempt)):
		}
		if err := c.connect(context.Background()); err != nil {
			continue
		}
		snap, err := c.resume(context.Background())
		c.notifyReconnect(snap, err)
		return
	}
	c.notifyReconnect(nil, ErrDisconnected)
}

// resume replays identity and reclaims the seat on a fresh connection.
func (c *Client) resume(ctx context.Context) (*protocol.Snapshot, error) {
	c.mu.Lock()
	name, roomID, token := c.name, c.roomID, c.token
	c.mu.Unlock()

	if name != "" {
		if err := c.DeclareName(ctx, name); err != nil {
			return nil, err
		}
	}
	if roomID == "" || token == "" {
		return nil, nil
	}
	snap, err := c.Reconnect(ctx, roomID, token, c.LastSeen())
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) notifyReconnect(snap *protocol.Snapshot, err error) {
	c.cbM.RLock()
	cbs := make([]ReconnectCallback, len(c.reconCbs))
	copy(cbs, c.reconCbs)
	c.cbM.RUnlock()
	for _, cb := range cbs {
		cb(snap, err)
	}
}

// Request sends one request and decodes the reply into out. Rejections are
// returned as protocol.Error.
func (c *Client) Request(ctx context.Context, typ string, payload, out any) error {
	if c.isStopping() {
		return ErrClosed
	}
	id := strconv.FormatUint(c.nextID.Add(1), 10)
	ch := make(chan protocol.Envelope, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrDisconnected
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := wsjson.Write(ctx, conn, protocol.NewRequest(typ, id, payload)); err != nil {
		c.forget(id)
		return err
	}

	select {
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case env, ok := <-ch:
		if !ok {
			return ErrDisconnected
		}
		if env.Type == protocol.TypeError {
			if env.Error == nil {
				return protocol.Error{Code: "Internal"}
			}
			return *env.Error
		}
		if out == nil {
			return nil
		}
		return env.Decode(out)
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) OnPush(cb PushCallback) {
	c.cbM.Lock()
	c.pushCbs = append(c.pushCbs, cb)
	c.cbM.Unlock()
}

func (c *Client) OnReconnect(cb ReconnectCallback) {
	c.cbM.Lock()
	c.reconCbs = append(c.reconCbs, cb)
	c.cbM.Unlock()
}

// LastSeen is the highest move sequence this client has observed.
func (c *Client) LastSeen() int { return int(c.lastSeq.Load()) }

func (c *Client) observeSeq(seq int) {
	for {
		cur := c.lastSeq.Load()
		if int64(seq) <= cur || c.lastSeq.CompareAndSwap(cur, int64(seq)) {
			return
		}
	}
}

// Seat is the room and seat token this client currently holds.
func (c *Client) Seat() (roomID, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID, c.token
}

// setSeat records the held seat. Sequence numbers restart with every room,
// so moving to another room (or to none) forgets the last one seen.
func (c *Client) setSeat(roomID, token string) {
	c.mu.Lock()
	if c.roomID != roomID {
		c.lastSeq.Store(0)
	}
	c.roomID, c.token = roomID, token
	c.mu.Unlock()
}

// Drop closes the current connection without stopping the client, as a
// network failure would.
func (c *Client) Drop() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusGoingAway, "drop")
	}
}

func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "close")
	}
	c.wg.Wait()
	return err
}

func (c *Client) isStopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := 100 * time.Millisecond << (attempt - 1)
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
