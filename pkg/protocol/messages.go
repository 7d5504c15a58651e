package protocol

type Player struct {
	Name string `json:"name"`
	Side string `json:"side"`
}

type Move struct {
	Sequence     int    `json:"sequence"`
	Side         string `json:"side"`
	MoveNotation string `json:"moveNotation"`
	UCI          string `json:"uci,omitempty"`
}

type DeclareNameRequest struct {
	Name string `json:"name"`
}

// RoomRequest is shared by joinRoom, resign, leaveRoom and watchRoom.
type RoomRequest struct {
	RoomID string `json:"roomId"`
}

type CreateRoomResponse struct {
	RoomID    string `json:"roomId"`
	Side      string `json:"side"`
	SeatToken string `json:"seatToken"`
}

type SubmitMoveRequest struct {
	RoomID       string `json:"roomId"`
	MoveNotation string `json:"moveNotation"`
}

type SubmitMoveResponse struct {
	Sequence int `json:"sequence"`
}

type ReconnectRequest struct {
	RoomID           string `json:"roomId"`
	SeatToken        string `json:"seatToken"`
	LastSeenSequence int    `json:"lastSeenSequence"`
}

// Snapshot answers joinRoom, watchRoom and reconnect.
type Snapshot struct {
	RoomID       string        `json:"roomId"`
	Side         string        `json:"side,omitempty"`
	SeatToken    string        `json:"seatToken,omitempty"`
	OpponentName string        `json:"opponentName,omitempty"`
	Players      []Player      `json:"players"`
	MoveHistory  []Move        `json:"moveHistory"`
	SideToMove   string        `json:"sideToMove"`
	Status       string        `json:"status"`
	Missed       []Move        `json:"missed,omitempty"`
	Finished     *GameFinished `json:"finished,omitempty"`
}

type OpponentJoined struct {
	Players []Player `json:"players"`
}

type MoveBroadcast struct {
	Sequence       int    `json:"sequence"`
	MoveNotation   string `json:"moveNotation"`
	UCI            string `json:"uci,omitempty"`
	SideToMoveNext string `json:"sideToMoveNext"`
}

type OpponentDisconnected struct {
	Side         string `json:"side"`
	GraceSeconds int    `json:"graceSeconds"`
}

type OpponentReconnected struct {
	Side string `json:"side"`
}

type GameFinished struct {
	Reason     string `json:"reason"`
	WinnerSide string `json:"winnerSide,omitempty"`
}

type Empty struct{}
