package transport

import (
	"sync"

	"github.com/park285/chess-session-server/pkg/protocol"
)

// outbox is a connection's bounded send queue. Push never blocks; the first
// overflow marks the connection as too slow and it is closed by the writer.
type outbox struct {
	ch       chan protocol.Envelope
	overflow chan struct{}
	once     sync.Once
}

func newOutbox(size int) *outbox {
	if size <= 0 {
		size = 64
	}
	return &outbox{
		ch:       make(chan protocol.Envelope, size),
		overflow: make(chan struct{}),
	}
}

func (o *outbox) Push(env protocol.Envelope) bool {
	select {
	case o.ch <- env:
		return true
	default:
		o.once.Do(func() { close(o.overflow) })
		return false
	}
}

// Overflowed is closed once an envelope has been dropped.
func (o *outbox) Overflowed() <-chan struct{} { return o.overflow }
