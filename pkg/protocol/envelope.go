package protocol

import (
	"encoding/json"
	"errors"
)

// Requests sent by clients.
const (
	TypeDeclareName = "declareName"
	TypeCreateRoom  = "createRoom"
	TypeJoinRoom    = "joinRoom"
	TypeSubmitMove  = "submitMove"
	TypeReconnect   = "reconnect"
	TypeResign      = "resign"
	TypeLeaveRoom   = "leaveRoom"
	TypeWatchRoom   = "watchRoom"
	TypePing        = "ping"
)

// Server pushes.
const (
	PushOpponentJoined       = "opponentJoined"
	PushMoveBroadcast        = "moveBroadcast"
	PushOpponentDisconnected = "opponentDisconnected"
	PushOpponentReconnected  = "opponentReconnected"
	PushGameFinished         = "gameFinished"
)

const (
	TypeError   = "error"
	replySuffix = ".ok"
)

var ErrEmptyPayload = errors.New("empty payload")

// Envelope is one JSON text frame in either direction.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// ReplyType maps a request type to the type of its success reply.
func ReplyType(request string) string { return request + replySuffix }

// IsReply reports whether the envelope answers a request.
func (e Envelope) IsReply() bool {
	if e.Type == TypeError {
		return e.ID != ""
	}
	n := len(e.Type) - len(replySuffix)
	return n > 0 && e.Type[n:] == replySuffix
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return ErrEmptyPayload
	}
	return json.Unmarshal(e.Payload, v)
}

func NewRequest(typ, id string, payload any) Envelope {
	return Envelope{Type: typ, ID: id, Payload: encode(payload)}
}

func NewReply(request, id string, payload any) Envelope {
	return Envelope{Type: ReplyType(request), ID: id, Payload: encode(payload)}
}

func NewPush(typ string, payload any) Envelope {
	return Envelope{Type: typ, Payload: encode(payload)}
}

func NewError(id string, e Error) Envelope {
	return Envelope{Type: TypeError, ID: id, Error: &e}
}

// encode marshals payload structs declared in this package; they contain no
// channels, funcs or cyclic references so Marshal does not fail for them.
func encode(v any) json.RawMessage {
	if v == nil {
		return json.RawMessage(`{}`)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}
