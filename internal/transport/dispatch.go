package transport

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/park285/chess-session-server/internal/domain"
	"github.com/park285/chess-session-server/internal/msgcat"
	"github.com/park285/chess-session-server/internal/obslog"
	"github.com/park285/chess-session-server/internal/session"
	"github.com/park285/chess-session-server/pkg/protocol"
)

// Dispatcher turns request envelopes into engine calls and engine results
// into reply envelopes.
type Dispatcher struct {
	engine *session.Engine
	cat    *msgcat.Catalog
}

func NewDispatcher(engine *session.Engine) *Dispatcher {
	return &Dispatcher{engine: engine, cat: engine.Catalog()}
}

// Handle runs one request for connID and returns the reply to send back.
func (d *Dispatcher) Handle(ctx context.Context, connID string, req protocol.Envelope) protocol.Envelope {
	payload, err := d.call(ctx, connID, req)
	if err != nil {
		return protocol.NewError(req.ID, d.toProtoError(err))
	}
	return protocol.NewReply(req.Type, req.ID, payload)
}

func (d *Dispatcher) call(ctx context.Context, connID string, req protocol.Envelope) (any, error) {
	e := d.engine
	switch req.Type {
	case protocol.TypePing:
		return protocol.Empty{}, nil

	case protocol.TypeDeclareName:
		var in protocol.DeclareNameRequest
		if err := d.decode(req, &in); err != nil {
			return nil, err
		}
		return protocol.Empty{}, e.DeclareName(connID, in.Name)

	case protocol.TypeCreateRoom:
		return e.CreateRoom(ctx, connID)

	case protocol.TypeJoinRoom:
		var in protocol.RoomRequest
		if err := d.decodeRoom(req, &in); err != nil {
			return nil, err
		}
		return e.JoinRoom(ctx, connID, in.RoomID)

	case protocol.TypeWatchRoom:
		var in protocol.RoomRequest
		if err := d.decodeRoom(req, &in); err != nil {
			return nil, err
		}
		return e.WatchRoom(ctx, connID, in.RoomID)

	case protocol.TypeSubmitMove:
		var in protocol.SubmitMoveRequest
		if err := d.decode(req, &in); err != nil {
			return nil, err
		}
		if in.RoomID == "" {
			return nil, d.badRequest("roomId is required")
		}
		seq, err := e.SubmitMove(ctx, connID, in.RoomID, in.MoveNotation)
		if err != nil {
			return nil, err
		}
		return protocol.SubmitMoveResponse{Sequence: seq}, nil

	case protocol.TypeReconnect:
		var in protocol.ReconnectRequest
		if err := d.decode(req, &in); err != nil {
			return nil, err
		}
		if in.RoomID == "" {
			return nil, d.badRequest("roomId is required")
		}
		return e.Reconnect(ctx, connID, in.RoomID, in.SeatToken, in.LastSeenSequence)

	case protocol.TypeResign:
		var in protocol.RoomRequest
		if err := d.decodeRoom(req, &in); err != nil {
			return nil, err
		}
		return protocol.Empty{}, e.Resign(ctx, connID, in.RoomID)

	case protocol.TypeLeaveRoom:
		var in protocol.RoomRequest
		if err := d.decodeRoom(req, &in); err != nil {
			return nil, err
		}
		return protocol.Empty{}, e.LeaveRoom(ctx, connID, in.RoomID)
	}
	return nil, d.badRequest(fmt.Sprintf("unknown request type %q", req.Type))
}

func (d *Dispatcher) decode(req protocol.Envelope, v any) error {
	if err := req.Decode(v); err != nil {
		return d.badRequest(fmt.Sprintf("%s: %v", req.Type, err))
	}
	return nil
}

func (d *Dispatcher) decodeRoom(req protocol.Envelope, in *protocol.RoomRequest) error {
	if err := d.decode(req, in); err != nil {
		return err
	}
	if in.RoomID == "" {
		return d.badRequest("roomId is required")
	}
	return nil
}

func (d *Dispatcher) badRequest(detail string) *domain.Error {
	return &domain.Error{
		Code:    domain.CodeBadRequest,
		Message: d.cat.Text("errors.BadRequest", map[string]any{"Detail": detail}, detail),
	}
}

// rejectFrame answers a frame that never reached the dispatcher.
func (d *Dispatcher) rejectFrame(id, detail string) protocol.Envelope {
	return protocol.NewError(id, d.toProtoError(d.badRequest(detail)))
}

func (d *Dispatcher) toProtoError(err error) protocol.Error {
	var de *domain.Error
	if errors.As(err, &de) {
		return protocol.Error{Code: string(de.Code), Message: de.Message, Retryable: de.Retryable}
	}
	obslog.L().Error("request_failed", zap.Error(err))
	return protocol.Error{Code: string(domain.CodeInternal), Message: d.cat.Text("errors.Internal", nil, "internal error")}
}
