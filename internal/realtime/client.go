package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lalith-99/huddle/internal/observ"
	"go.uber.org/zap"
)

// Handler receives the events of one subscription, one at a time.
type Handler func(ctx context.Context, ev Event)

type subOptions struct {
	onReconnect func(ctx context.Context)
}

type Option func(*subOptions)

// WithReconnect registers fn to run after the subscription was re-opened
// following a lost stream. Events published in the gap are not replayed,
// so fn is expected to refetch the full view.
func WithReconnect(fn func(ctx context.Context)) Option {
	return func(o *subOptions) { o.onReconnect = fn }
}

// Client is the change feed client: one goroutine per subscription, with
// automatic resubscribe and exponential backoff when the stream drops.
type Client struct {
	broker      Broker
	logger      *zap.Logger
	metrics     *observ.Metrics
	maxInterval time.Duration
}

func NewClient(broker Broker, logger *zap.Logger, metrics *observ.Metrics, maxInterval time.Duration) *Client {
	if maxInterval <= 0 {
		maxInterval = 30 * time.Second
	}
	return &Client{
		broker:      broker,
		logger:      logger.Named("feed"),
		metrics:     metrics,
		maxInterval: maxInterval,
	}
}

// Handle is an open subscription. Close it on scope change or teardown;
// a forgotten handle keeps its goroutine and broker stream alive.
type Handle struct {
	filter Filter
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (h *Handle) Filter() Filter { return h.filter }

// Close stops the subscription and waits for its handler to return.
// Safe to call more than once. Must not be called from inside the
// handler of the same subscription.
func (h *Handle) Close() {
	h.once.Do(h.cancel)
	<-h.done
}

// Subscribe opens the stream for f before returning, so a caller that
// fetches its initial state afterwards cannot miss a change made in
// between. fn runs on the subscription's goroutine until ctx is done or
// the handle is closed.
func (c *Client) Subscribe(ctx context.Context, f Filter, fn Handler, opts ...Option) (*Handle, error) {
	var o subOptions
	for _, opt := range opts {
		opt(&o)
	}

	stream, err := c.broker.Subscribe(ctx, f.Topic())
	if err != nil {
		return nil, err
	}

	hctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		filter: f,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.run(hctx, h, stream, fn, o)
	return h, nil
}

// Unsubscribe closes h. Equivalent to h.Close.
func (c *Client) Unsubscribe(h *Handle) {
	if h != nil {
		h.Close()
	}
}

func (c *Client) run(ctx context.Context, h *Handle, stream Stream, fn Handler, o subOptions) {
	defer close(h.done)

	if c.metrics != nil {
		c.metrics.ActiveSubscriptions.Inc()
		defer c.metrics.ActiveSubscriptions.Dec()
	}

	log := c.logger.With(zap.String("topic", h.filter.Topic()))

	for {
		err := c.pump(ctx, stream, fn, o)
		_ = stream.Close()
		if ctx.Err() != nil {
			return
		}
		log.Warn("feed stream lost, resubscribing", zap.Error(err))

		stream = c.resubscribe(ctx, h.filter, log)
		if stream == nil {
			return
		}
		if c.metrics != nil {
			c.metrics.Resubscribes.Inc()
		}
		if o.onReconnect != nil {
			o.onReconnect(ctx)
		}
	}
}

func (c *Client) pump(ctx context.Context, stream Stream, fn Handler, o subOptions) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream.Events():
			if !ok {
				if err := stream.Err(); err != nil {
					return err
				}
				return ErrStreamLost
			}
			if ev.Op == OpResync {
				if o.onReconnect != nil {
					o.onReconnect(ctx)
				}
				continue
			}
			if c.metrics != nil {
				c.metrics.FeedEvents.WithLabelValues(string(ev.Table), string(ev.Op)).Inc()
			}
			fn(ctx, ev)
		}
	}
}

// resubscribe retries until it gets a stream or ctx ends (nil).
func (c *Client) resubscribe(ctx context.Context, f Filter, log *zap.Logger) Stream {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 100 * time.Millisecond
	eb.MaxInterval = c.maxInterval
	eb.MaxElapsedTime = 0

	var stream Stream
	op := func() error {
		s, err := c.broker.Subscribe(ctx, f.Topic())
		if err != nil {
			if errors.Is(err, ErrBrokerClosed) {
				return backoff.Permanent(err)
			}
			return err
		}
		stream = s
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Debug("resubscribe failed", zap.Error(err), zap.Duration("retry_in", wait))
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(eb, ctx), notify); err != nil {
		if ctx.Err() == nil {
			log.Error("giving up on feed subscription", zap.Error(err))
		}
		return nil
	}
	return stream
}
