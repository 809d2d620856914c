package messaging

import (
	"context"
)

// Broker is the topic-addressable publish primitive the sync layer fans
// events out through. Delivery is at-most-once; there is no event log and
// no replay.
type Broker interface {
	Publish(ctx context.Context, topic string, message interface{}) error
	Subscribe(ctx context.Context, topic string) (<-chan []byte, error)
	Close() error
}
