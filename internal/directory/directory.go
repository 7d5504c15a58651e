package directory

import (
	"context"
	"time"

	"github.com/park285/chess-session-server/internal/domain"
)

// Listing is the public summary of a room published for lobby views and
// cross-node id reservation.
type Listing struct {
	ID        string        `json:"id"`
	Status    domain.Status `json:"status"`
	White     string        `json:"white,omitempty"`
	Black     string        `json:"black,omitempty"`
	Moves     int           `json:"moves"`
	Node      string        `json:"node,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Directory stores room listings. Reserve must be atomic across nodes.
type Directory interface {
	Reserve(ctx context.Context, roomID string) (bool, error)
	Publish(ctx context.Context, l Listing) error
	Release(ctx context.Context, roomID string) error
	Get(ctx context.Context, roomID string) (*Listing, error)
	Lobby(ctx context.Context) ([]Listing, error)
}
