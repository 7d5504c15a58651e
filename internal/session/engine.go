package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-session-server/internal/directory"
	"github.com/park285/chess-session-server/internal/domain"
	"github.com/park285/chess-session-server/internal/metrics"
	"github.com/park285/chess-session-server/internal/msgcat"
	"github.com/park285/chess-session-server/internal/obslog"
	"github.com/park285/chess-session-server/internal/registry"
	"github.com/park285/chess-session-server/internal/room"
	"github.com/park285/chess-session-server/internal/rules"
	"github.com/park285/chess-session-server/pkg/protocol"
)

type Options struct {
	Grace             time.Duration
	FinishedRetention time.Duration
	WaitingTTL        time.Duration
	ReapInterval      time.Duration
	RulesTimeout      time.Duration
	NodeID            string
}

func (o Options) withDefaults() Options {
	if o.Grace <= 0 {
		o.Grace = 30 * time.Second
	}
	if o.FinishedRetention <= 0 {
		o.FinishedRetention = 10 * time.Second
	}
	if o.WaitingTTL <= 0 {
		o.WaitingTTL = 30 * time.Minute
	}
	if o.ReapInterval <= 0 {
		o.ReapInterval = 5 * time.Second
	}
	if o.RulesTimeout <= 0 {
		o.RulesTimeout = 2 * time.Second
	}
	return o
}

// Deps are the collaborators of an Engine. Rules is required; nil Feed,
// Metrics and Catalog disable those concerns.
type Deps struct {
	Clients *registry.Registry
	Rooms   *room.Store
	Rules   rules.Engine
	Feed    *directory.Feed
	Metrics *metrics.Metrics
	Catalog *msgcat.Catalog
}

// Engine drives every room's state machine. Each operation locks at most one
// room and never waits on client delivery.
type Engine struct {
	opts    Options
	clients *registry.Registry
	rooms   *room.Store
	rules   rules.Engine
	feed    *directory.Feed
	metrics *metrics.Metrics
	catalog *msgcat.Catalog
	now     func() time.Time
}

func New(deps Deps, opts Options) *Engine {
	if deps.Clients == nil {
		deps.Clients = registry.New()
	}
	if deps.Rooms == nil {
		deps.Rooms = room.NewStore()
	}
	e := &Engine{
		opts:    opts.withDefaults(),
		clients: deps.Clients,
		rooms:   deps.Rooms,
		rules:   deps.Rules,
		feed:    deps.Feed,
		metrics: deps.Metrics,
		catalog: deps.Catalog,
		now:     time.Now,
	}
	e.clients.OnDisconnect(e.OnDisconnect)
	return e
}

func (e *Engine) Clients() *registry.Registry { return e.clients }

func (e *Engine) Rooms() *room.Store { return e.rooms }

func (e *Engine) Grace() time.Duration { return e.opts.Grace }

// Catalog is the message catalog rejections are rendered from. It may be nil.
func (e *Engine) Catalog() *msgcat.Catalog { return e.catalog }

// Connect registers a new connection.
func (e *Engine) Connect(connID string, sink registry.Sink) (*registry.Client, error) {
	c, err := e.clients.Register(connID, sink)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateConnection) {
			err = e.reject(domain.ErrDuplicateConnection, "errors.DuplicateConnection", map[string]any{"ConnID": connID})
		}
		e.metrics.Rejected("connect", string(domain.CodeOf(err)))
		return nil, err
	}
	e.metrics.ConnectionOpened()
	return c, nil
}

// Disconnect unregisters the connection, running presence handling first.
func (e *Engine) Disconnect(connID string) {
	if e.clients.Unregister(connID) {
		e.metrics.ConnectionClosed()
	}
}

func (e *Engine) DeclareName(connID, name string) (err error) {
	defer e.track(protocol.TypeDeclareName, &err)

	c, err := e.client(connID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return e.reject(domain.ErrInvalidState, "state.name_empty", nil)
	}
	if c.Name() != "" {
		return e.reject(domain.ErrInvalidState, "state.name_already_set", nil)
	}
	if err := e.clients.SetName(connID, name); err != nil {
		// lost a race with another declareName on the same connection
		return e.reject(domain.ErrInvalidState, "state.name_already_set", nil)
	}
	return nil
}

// CreateRoom allocates a WAITING room and seats the caller as white.
func (e *Engine) CreateRoom(ctx context.Context, connID string) (resp protocol.CreateRoomResponse, err error) {
	defer e.track(protocol.TypeCreateRoom, &err)

	c, err := e.client(connID)
	if err != nil {
		return resp, err
	}
	if cur := c.RoomID(); cur != "" {
		return resp, e.reject(domain.ErrInvalidState, "state.already_in_room", map[string]any{"RoomID": cur})
	}

	r, err := e.rooms.CreateLocked(ctx)
	if err != nil {
		return resp, err
	}
	token := uuid.NewString()

	side, _, err := r.Join(c, token, e.now())
	if err != nil {
		r.Unlock()
		e.rooms.Remove(r)
		return resp, err
	}
	c.SetRoom(r.ID)
	listing := e.listingLocked(r)
	r.Unlock()

	e.feed.Publish(listing)
	e.metrics.RoomCreated()
	e.metrics.RoomStatus("", string(domain.StatusWaiting))
	obslog.L().Info("room_created",
		zap.String("room_id", r.ID),
		zap.String("conn_id", connID),
		zap.String("name", c.Name()),
	)
	return protocol.CreateRoomResponse{RoomID: r.ID, Side: string(side), SeatToken: token}, nil
}

// JoinRoom seats the caller in the first free slot. Filling the second slot
// activates the room and announces the player list to everyone in it.
func (e *Engine) JoinRoom(ctx context.Context, connID, roomID string) (snap protocol.Snapshot, err error) {
	defer e.track(protocol.TypeJoinRoom, &err)

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

	token := uuid.NewString()
	side, full, err := r.Join(c, token, e.now())
	if err != nil {
		switch domain.CodeOf(err) {
		case domain.CodeRoomFull:
			return snap, e.reject(domain.ErrRoomFull, "errors.RoomFull", map[string]any{"RoomID": r.ID})
		case domain.CodeRoomNotFound:
			return snap, e.reject(domain.ErrRoomNotFound, "errors.RoomNotFound", map[string]any{"RoomID": r.ID})
		}
		return snap, err
	}
	c.SetRoom(r.ID)

	if full && r.Status() == domain.StatusWaiting {
		e.setStatusLocked(r, domain.StatusActive)
		dropped := r.Broadcast(protocol.NewPush(protocol.PushOpponentJoined, protocol.OpponentJoined{
			Players: playersToProto(r.Players()),
		}), "")
		e.metrics.OutboxDropped(dropped)
		obslog.L().Info("room_active",
			zap.String("room_id", r.ID),
			zap.String("white", r.Slot(domain.White).Name),
			zap.String("black", r.Slot(domain.Black).Name),
		)
	}
	if e.checkLocked(r) {
		return snap, e.reject(domain.ErrInvalidState, "state.room_finished", map[string]any{"RoomID": r.ID})
	}
	e.feed.Publish(e.listingLocked(r))
	return e.snapshotLocked(r, side, token), nil
}

// WatchRoom adds the caller as a spectator.
func (e *Engine) WatchRoom(ctx context.Context, connID, roomID string) (snap protocol.Snapshot, err error) {
	defer e.track(protocol.TypeWatchRoom, &err)

	c, err := e.client(connID)
	if err != nil {
		return snap, err
	}
	if cur := c.RoomID(); cur != "" {
		return snap, e.reject(domain.ErrInvalidState, "state.already_in_room", map[string]any{"RoomID": cur})
	}
	r, err := e.lockRoom(roomID)
	if err != nil {
		return snap, err
	}
	defer r.Unlock()

	if r.Status() == domain.StatusFinished {
		return snap, e.reject(domain.ErrInvalidState, "state.room_finished", map[string]any{"RoomID": r.ID})
	}
	r.AddSpectator(c)
	c.SetRoom(r.ID)
	return e.snapshotLocked(r, "", ""), nil
}

// Resign ends an ACTIVE or PAUSED game in the opponent's favour.
func (e *Engine) Resign(ctx context.Context, connID, roomID string) (err error) {
	defer e.track(protocol.TypeResign, &err)

	r, err := e.lockRoom(roomID)
	if err != nil {
		return err
	}
	defer r.Unlock()

	side, seated := r.SideOf(connID)
	if !seated {
		return e.reject(domain.ErrNotAPlayer, "errors.NotAPlayer", map[string]any{"RoomID": r.ID})
	}
	if st := r.Status(); st != domain.StatusActive && st != domain.StatusPaused {
		return e.reject(domain.ErrInvalidState, "state.not_active", map[string]any{"RoomID": r.ID, "Status": st})
	}
	e.finishLocked(r, domain.ReasonResignation, side.Opponent())
	return nil
}

// LeaveRoom detaches the caller. A creator leaving a WAITING room discards
// it; a player leaving a running game resigns.
func (e *Engine) LeaveRoom(ctx context.Context, connID, roomID string) (err error) {
	defer e.track(protocol.TypeLeaveRoom, &err)

	c, err := e.client(connID)
	if err != nil {
		return err
	}
	r, err := e.lockRoom(roomID)
	if err != nil {
		return err
	}
	defer r.Unlock()

	if r.RemoveSpectator(connID) {
		c.ClearRoom(r.ID)
		return nil
	}
	side, seated := r.SideOf(connID)
	if !seated {
		return e.reject(domain.ErrNotAPlayer, "errors.NotAPlayer", map[string]any{"RoomID": r.ID})
	}

	switch r.Status() {
	case domain.StatusWaiting:
		e.discardLocked(r, "creator_left")
	case domain.StatusActive, domain.StatusPaused:
		e.finishLocked(r, domain.ReasonResignation, side.Opponent())
	}
	c.ClearRoom(r.ID)
	return nil
}

func (e *Engine) client(connID string) (*registry.Client, error) {
	c, ok := e.clients.Get(connID)
	if !ok {
		return nil, e.reject(domain.ErrInvalidState, "errors.InvalidState", map[string]any{"ConnID": connID})
	}
	return c, nil
}

// lockRoom returns the room locked. Rooms discarded while the caller waited
// for the lock are reported as not found.
func (e *Engine) lockRoom(roomID string) (*room.Room, error) {
	r, err := e.rooms.Find(roomID)
	if err != nil {
		return nil, e.reject(domain.ErrRoomNotFound, "errors.RoomNotFound", map[string]any{"RoomID": roomID})
	}
	r.Lock()
	if r.Discarded() {
		r.Unlock()
		return nil, e.reject(domain.ErrRoomNotFound, "errors.RoomNotFound", map[string]any{"RoomID": roomID})
	}
	return r, nil
}

func (e *Engine) setStatusLocked(r *room.Room, to domain.Status) {
	from := r.Status()
	r.SetStatus(to, e.now())
	e.metrics.RoomStatus(string(from), string(to))
}

// finishLocked moves the room to FINISHED, tells everyone still attached and
// drops their room references.
func (e *Engine) finishLocked(r *room.Room, reason domain.FinishReason, winner domain.Side) {
	from := r.Status()
	if !r.Finish(reason, winner, e.now()) {
		return
	}
	e.metrics.RoomStatus(string(from), string(domain.StatusFinished))
	e.metrics.Finished(string(reason))

	dropped := r.Broadcast(protocol.NewPush(protocol.PushGameFinished, finishToProto(r.Result())), "")
	e.metrics.OutboxDropped(dropped)
	for _, p := range r.Occupants() {
		clearRef(p, r.ID)
	}
	for _, p := range r.Spectators() {
		clearRef(p, r.ID)
	}
	e.feed.Publish(e.listingLocked(r))

	obslog.L().Info("room_finished",
		zap.String("room_id", r.ID),
		zap.String("reason", string(reason)),
		zap.String("winner", string(winner)),
		zap.Int("moves", r.Len()),
	)
}

// discardLocked drops a room that never produced a game.
func (e *Engine) discardLocked(r *room.Room, cause string) {
	from := r.Status()
	r.Discard(e.now())
	for _, p := range r.Occupants() {
		clearRef(p, r.ID)
	}
	for _, p := range r.Spectators() {
		clearRef(p, r.ID)
	}
	if e.rooms.Remove(r) {
		e.metrics.RoomStatus(string(from), "")
	}
	e.feed.Release(r.ID)
	obslog.L().Info("room_discarded", zap.String("room_id", r.ID), zap.String("cause", cause))
}

// checkLocked aborts the room when its invariants no longer hold. It returns
// true when the room was aborted.
func (e *Engine) checkLocked(r *room.Room) bool {
	err := r.CheckInvariants()
	if err == nil {
		return false
	}
	obslog.L().Error("room_invariant_violated", zap.String("room_id", r.ID), zap.Error(err))
	e.finishLocked(r, domain.ReasonAborted, "")
	return true
}

func (e *Engine) reject(base *domain.Error, key string, data map[string]any) *domain.Error {
	return &domain.Error{
		Code:      base.Code,
		Message:   e.catalog.Text(key, data, string(base.Code)),
		Retryable: base.Retryable,
	}
}

// track counts rejected operations by code.
func (e *Engine) track(op string, errp *error) {
	if errp == nil || *errp == nil {
		return
	}
	e.metrics.Rejected(op, string(domain.CodeOf(*errp)))
	var de *domain.Error
	if !errors.As(*errp, &de) {
		obslog.L().Warn("operation_failed", zap.String("op", op), zap.Error(*errp))
	}
}

func clearRef(p room.Peer, roomID string) {
	if h, ok := p.(interface{ ClearRoom(string) }); ok {
		h.ClearRoom(roomID)
	}
}

func (e *Engine) listingLocked(r *room.Room) directory.Listing {
	return directory.Listing{
		ID:        r.ID,
		Status:    r.Status(),
		White:     r.Slot(domain.White).Name,
		Black:     r.Slot(domain.Black).Name,
		Moves:     r.Len(),
		Node:      e.opts.NodeID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: e.now(),
	}
}

func (e *Engine) snapshotLocked(r *room.Room, side domain.Side, token string) protocol.Snapshot {
	snap := protocol.Snapshot{
		RoomID:      r.ID,
		Side:        string(side),
		SeatToken:   token,
		Players:     playersToProto(r.Players()),
		MoveHistory: movesToProto(r.History()),
		SideToMove:  string(r.SideToMove()),
		Status:      string(r.Status()),
	}
	if side.Valid() {
		snap.OpponentName = r.Slot(side.Opponent()).Name
	}
	if res := r.Result(); res != nil {
		f := finishToProto(res)
		snap.Finished = &f
	}
	return snap
}
