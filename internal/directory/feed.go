package directory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-session-server/internal/obslog"
)

type feedOp struct {
	listing Listing
	release bool
}

// Feed applies directory writes on one background goroutine so room
// transitions never wait on the network. Writes are applied in submission
// order; when the buffer is full they are dropped. A nil *Feed is a no-op.
type Feed struct {
	dir     Directory
	ops     chan feedOp
	timeout time.Duration

	startOnce sync.Once
	done      chan struct{}
}

func NewFeed(dir Directory, buffer int, timeout time.Duration) *Feed {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Feed{dir: dir, ops: make(chan feedOp, buffer), timeout: timeout, done: make(chan struct{})}
}

// Start runs the writer until ctx is cancelled, then drains what is queued.
func (f *Feed) Start(ctx context.Context) {
	if f == nil {
		return
	}
	f.startOnce.Do(func() { go f.run(ctx) })
}

// Done is closed after the writer exits.
func (f *Feed) Done() <-chan struct{} {
	if f == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return f.done
}

func (f *Feed) Publish(l Listing) bool {
	return f.enqueue(feedOp{listing: l})
}

func (f *Feed) Release(roomID string) bool {
	return f.enqueue(feedOp{listing: Listing{ID: roomID}, release: true})
}

func (f *Feed) enqueue(op feedOp) bool {
	if f == nil || f.dir == nil {
		return false
	}
	select {
	case f.ops <- op:
		return true
	default:
		obslog.L().Warn("directory_feed_dropped", zap.String("room_id", op.listing.ID), zap.Bool("release", op.release))
		return false
	}
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.done)
	for {
		select {
		case op := <-f.ops:
			f.apply(op)
		case <-ctx.Done():
			for {
				select {
				case op := <-f.ops:
					f.apply(op)
				default:
					return
				}
			}
		}
	}
}

func (f *Feed) apply(op feedOp) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	var err error
	if op.release {
		err = f.dir.Release(ctx, op.listing.ID)
	} else {
		err = f.dir.Publish(ctx, op.listing)
	}
	if err != nil {
		obslog.L().Warn("directory_write_failed",
			zap.String("room_id", op.listing.ID),
			zap.Bool("release", op.release),
			zap.Error(err),
		)
	}
}
