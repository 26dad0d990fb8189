package messaging

import (
	"context"
)

// Broker publishes messages to named channels.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Close() error
}
