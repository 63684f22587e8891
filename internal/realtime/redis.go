package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker publishes events as JSON on Redis pub/sub channels, so every
// server instance sees every write.
type RedisBroker struct {
	client redis.UniversalClient
	logger *zap.Logger
	buffer int
}

// NewRedisClient builds a client from one URL or a comma-separated list
// of addresses (cluster), and pings it.
func NewRedisClient(ctx context.Context, redisURL string) (redis.UniversalClient, error) {
	opts := &redis.UniversalOptions{}
	for _, part := range strings.Split(redisURL, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "://") {
			opts.Addrs = append(opts.Addrs, part)
			continue
		}
		parsed, err := redis.ParseURL(part)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts.Addrs = append(opts.Addrs, parsed.Addr)
		if opts.Username == "" {
			opts.Username = parsed.Username
		}
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		if opts.DB == 0 {
			opts.DB = parsed.DB
		}
		if opts.TLSConfig == nil {
			opts.TLSConfig = parsed.TLSConfig
		}
	}
	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("no redis addresses in %q", redisURL)
	}
	if len(opts.Addrs) > 1 {
		opts.DB = 0
	}

	client := redis.NewUniversalClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func NewRedisBroker(client redis.UniversalClient, logger *zap.Logger) *RedisBroker {
	return &RedisBroker{
		client: client,
		logger: logger.Named("redis-broker"),
		buffer: 128,
	}
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (Stream, error) {
	ps := b.client.Subscribe(ctx, topic)

	// Wait for the subscription confirmation so nothing published after
	// Subscribe returns can be missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	s := &redisStream{
		ps:   ps,
		out:  make(chan Event, b.buffer),
		done: make(chan struct{}),
	}
	go s.pump(topic, b.logger)
	return s, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

type redisStream struct {
	ps   *redis.PubSub
	out  chan Event
	done chan struct{}

	mu     sync.Mutex
	err    error
	closed bool
}

// pump forwards messages until the pubsub channel closes. go-redis
// reconnects on its own and re-sends a subscription confirmation when it
// does; that is surfaced as OpResync because messages published while
// disconnected are gone.
func (s *redisStream) pump(topic string, logger *zap.Logger) {
	defer close(s.out)

	for raw := range s.ps.ChannelWithSubscriptions() {
		switch msg := raw.(type) {
		case *redis.Subscription:
			if msg.Kind != "subscribe" {
				continue
			}
			if !s.forward(Event{Op: OpResync, At: time.Now().UTC()}) {
				return
			}
		case *redis.Message:
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("dropping undecodable event", zap.String("topic", topic), zap.Error(err))
				continue
			}
			if !s.forward(ev) {
				return
			}
		}
	}

	s.mu.Lock()
	if !s.closed {
		s.err = ErrStreamLost
	}
	s.mu.Unlock()
}

func (s *redisStream) forward(ev Event) bool {
	select {
	case s.out <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *redisStream) Events() <-chan Event { return s.out }

func (s *redisStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *redisStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	return s.ps.Close()
}
