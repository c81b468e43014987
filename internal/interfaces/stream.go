package interfaces

import (
	"context"

	"github.com/bobmcallan/coindex/internal/models"
)

// PricePublisher emits row-change events after price writes commit.
// Implementations must only ever publish complete rows.
type PricePublisher interface {
	Publish(ctx context.Context, event models.PriceEvent) error
}

// PriceStream is a consumer subscription to the price change stream.
// Delivery is at-least-once; events for the same symbol arrive in write
// order, with no stronger cross-symbol ordering.
type PriceStream interface {
	// Subscribe blocks until the subscription handshake completes and
	// returns the event channel. The channel is closed when the stream
	// drops or Unsubscribe is called.
	Subscribe(ctx context.Context) (<-chan models.PriceEvent, error)

	// Unsubscribe stops delivery. No events arrive after it returns, and
	// calling it multiple times is safe.
	Unsubscribe() error
}
