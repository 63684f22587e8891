package realtime

import (
	"context"
	"errors"
)

var (
	// ErrStreamLost is reported by a stream that ended without Close.
	ErrStreamLost = errors.New("realtime: stream lost")

	// ErrSlowConsumer is reported by a stream that was dropped because its
	// buffer filled up.
	ErrSlowConsumer = errors.New("realtime: subscriber too slow")

	ErrBrokerClosed = errors.New("realtime: broker closed")
)

// Stream is one live subscription to a topic. Events is closed when the
// stream ends; Err then tells why (nil after Close).
type Stream interface {
	Events() <-chan Event
	Err() error
	Close() error
}

// Broker is the publish/subscribe transport behind the change feed.
type Broker interface {
	Publish(ctx context.Context, topic string, ev Event) error
	Subscribe(ctx context.Context, topic string) (Stream, error)
	Close() error
}
