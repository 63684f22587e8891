package realtime

import (
	"context"
	"sync"
)

// MemoryBroker fans events out inside one process. A subscriber whose
// buffer is full is disconnected with ErrSlowConsumer instead of blocking
// the publisher; the feed client then resubscribes and refetches.
type MemoryBroker struct {
	mu     sync.Mutex
	buffer int
	subs   map[string]map[*memoryStream]struct{}
	closed bool
}

func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryBroker{
		buffer: buffer,
		subs:   make(map[string]map[*memoryStream]struct{}),
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, topic string, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}
	for s := range b.subs[topic] {
		select {
		case s.ch <- ev:
		default:
			b.dropLocked(s, ErrSlowConsumer)
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, topic string) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}
	s := &memoryStream{
		broker: b,
		topic:  topic,
		ch:     make(chan Event, b.buffer),
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*memoryStream]struct{})
	}
	b.subs[topic][s] = struct{}{}
	return s, nil
}

// Disconnect ends every stream on topic with ErrStreamLost, as a network
// drop would.
func (b *MemoryBroker) Disconnect(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs[topic] {
		b.dropLocked(s, ErrStreamLost)
	}
}

// Subscribers returns the number of open streams on topic.
func (b *MemoryBroker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, set := range b.subs {
		for s := range set {
			b.dropLocked(s, ErrBrokerClosed)
		}
	}
	return nil
}

// dropLocked removes s and closes its channel. b.mu must be held; every
// send on s.ch also happens under b.mu, so a send never races the close.
func (b *MemoryBroker) dropLocked(s *memoryStream, err error) {
	set, ok := b.subs[s.topic]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(b.subs, s.topic)
	}
	s.err = err
	close(s.ch)
}

type memoryStream struct {
	broker *MemoryBroker
	topic  string
	ch     chan Event
	err    error // guarded by broker.mu
}

func (s *memoryStream) Events() <-chan Event { return s.ch }

func (s *memoryStream) Err() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	return s.err
}

func (s *memoryStream) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	s.broker.dropLocked(s, nil)
	return nil
}
