package domain

import "time"

// Side identifies a player slot.
type Side string

const (
	White Side = "white"
	Black Side = "black"
)

// Index maps white to 0 and black to 1.
func (s Side) Index() int {
	if s == Black {
		return 1
	}
	return 0
}

func (s Side) Opponent() Side {
	if s == White {
		return Black
	}
	return White
}

func (s Side) Valid() bool { return s == White || s == Black }

// SideAt is the inverse of Index.
func SideAt(i int) Side {
	if i == 1 {
		return Black
	}
	return White
}

// Status is the room lifecycle state.
type Status string

const (
	StatusWaiting  Status = "WAITING"
	StatusActive   Status = "ACTIVE"
	StatusPaused   Status = "PAUSED"
	StatusFinished Status = "FINISHED"
)

// FinishReason explains a FINISHED room.
type FinishReason string

const (
	ReasonCheckmate   FinishReason = "Checkmate"
	ReasonStalemate   FinishReason = "Stalemate"
	ReasonDraw        FinishReason = "Draw"
	ReasonResignation FinishReason = "Resignation"
	ReasonForfeit     FinishReason = "Forfeit"
	ReasonAborted     FinishReason = "Aborted"
)

// MoveRecord is one accepted move. Sequence starts at 1.
type MoveRecord struct {
	Sequence int
	Side     Side
	Notation string // SAN
	UCI      string
	At       time.Time
}

// Finish is the terminal result of a room. Winner is empty for draws and aborts.
type Finish struct {
	Reason FinishReason
	Winner Side
	At     time.Time
}

type Player struct {
	Name string
	Side Side
}
