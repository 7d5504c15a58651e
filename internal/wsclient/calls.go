package wsclient

import (
	"context"

	"github.com/park285/chess-session-server/pkg/protocol"
)

func (c *Client) Ping(ctx context.Context) error {
	return c.Request(ctx, protocol.TypePing, nil, nil)
}

func (c *Client) DeclareName(ctx context.Context, name string) error {
	if err := c.Request(ctx, protocol.TypeDeclareName, protocol.DeclareNameRequest{Name: name}, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
	return nil
}

func (c *Client) CreateRoom(ctx context.Context) (protocol.CreateRoomResponse, error) {
	var out protocol.CreateRoomResponse
	if err := c.Request(ctx, protocol.TypeCreateRoom, nil, &out); err != nil {
		return out, err
	}
	c.setSeat(out.RoomID, out.SeatToken)
	return out, nil
}

func (c *Client) JoinRoom(ctx context.Context, roomID string) (protocol.Snapshot, error) {
	var out protocol.Snapshot
	if err := c.Request(ctx, protocol.TypeJoinRoom, protocol.RoomRequest{RoomID: roomID}, &out); err != nil {
		return out, err
	}
	c.setSeat(out.RoomID, out.SeatToken)
	c.observeHistory(out.MoveHistory)
	return out, nil
}

func (c *Client) WatchRoom(ctx context.Context, roomID string) (protocol.Snapshot, error) {
	var out protocol.Snapshot
	if err := c.Request(ctx, protocol.TypeWatchRoom, protocol.RoomRequest{RoomID: roomID}, &out); err != nil {
		return out, err
	}
	c.lastSeq.Store(0)
	c.observeHistory(out.MoveHistory)
	return out, nil
}

func (c *Client) SubmitMove(ctx context.Context, roomID, notation string) (int, error) {
	var out protocol.SubmitMoveResponse
	req := protocol.SubmitMoveRequest{RoomID: roomID, MoveNotation: notation}
	if err := c.Request(ctx, protocol.TypeSubmitMove, req, &out); err != nil {
		return 0, err
	}
	c.observeSeq(out.Sequence)
	return out.Sequence, nil
}

func (c *Client) Reconnect(ctx context.Context, roomID, seatToken string, lastSeen int) (protocol.Snapshot, error) {
	var out protocol.Snapshot
	req := protocol.ReconnectRequest{RoomID: roomID, SeatToken: seatToken, LastSeenSequence: lastSeen}
	if err := c.Request(ctx, protocol.TypeReconnect, req, &out); err != nil {
		return out, err
	}
	c.setSeat(out.RoomID, seatToken)
	c.observeHistory(out.MoveHistory)
	return out, nil
}

func (c *Client) Resign(ctx context.Context, roomID string) error {
	return c.Request(ctx, protocol.TypeResign, protocol.RoomRequest{RoomID: roomID}, nil)
}

func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	if err := c.Request(ctx, protocol.TypeLeaveRoom, protocol.RoomRequest{RoomID: roomID}, nil); err != nil {
		return err
	}
	c.setSeat("", "")
	return nil
}

func (c *Client) observeHistory(ms []protocol.Move) {
	if n := len(ms); n > 0 {
		c.observeSeq(ms[n-1].Sequence)
	}
}
