package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-session-server/internal/obslog"
	"github.com/park285/chess-session-server/internal/session"
	"github.com/park285/chess-session-server/pkg/protocol"
)

const maxFrameBytes = 64 << 10

type Options struct {
	AllowedOrigins []string
	OutboxSize     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
}

// Handler upgrades HTTP requests to websocket sessions bound to the engine.
type Handler struct {
	engine     *session.Engine
	dispatcher *Dispatcher
	opts       Options
}

func NewHandler(engine *session.Engine, opts Options) *Handler {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	return &Handler{engine: engine, dispatcher: NewDispatcher(engine), opts: opts}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.opts.AllowedOrigins,
		InsecureSkipVerify: len(h.opts.AllowedOrigins) == 0,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	connID := uuid.NewString()
	box := newOutbox(h.opts.OutboxSize)
	if _, err := h.engine.Connect(connID, box); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "register failed")
		return
	}
	obslog.L().Info("ws_connected", zap.String("conn_id", connID), zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		h.writeLoop(ctx, conn, box, connID)
	}()

	h.readLoop(ctx, conn, box, connID)
	cancel()
	<-writerDone

	h.engine.Disconnect(connID)
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	obslog.L().Info("ws_disconnected", zap.String("conn_id", connID))
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, box *outbox, connID string) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				obslog.L().Debug("ws_read_failed", zap.String("conn_id", connID), zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			box.Push(h.dispatcher.rejectFrame("", "binary frames are not supported"))
			continue
		}
		var req protocol.Envelope
		if err := json.Unmarshal(data, &req); err != nil || req.Type == "" {
			box.Push(h.dispatcher.rejectFrame(req.ID, "malformed envelope"))
			continue
		}
		box.Push(h.dispatcher.Handle(ctx, connID, req))
	}
}

// writeLoop drains the outbox in order and pings the peer. A full outbox
// means the peer cannot keep up and the connection is closed.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, box *outbox, connID string) {
	ping := time.NewTicker(h.opts.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-box.Overflowed():
			obslog.L().Warn("ws_outbox_overflow", zap.String("conn_id", connID))
			_ = conn.Close(websocket.StatusPolicyViolation, "slow consumer")
			return
		case env := <-box.ch:
			wctx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
			err := wsjson.Write(wctx, conn, env)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_write_failed", zap.String("conn_id", connID), zap.Error(err))
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

