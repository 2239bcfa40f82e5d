package event

import "context"

// Publisher fans an event out to the auction's room and the global room.
// Delivery is best effort; implementations report only failures to hand the
// event off, never per-subscriber drops.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
