package editorial

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// EventReceiver is one live subscription connection. Receive blocks until
// an event arrives or the connection breaks.
type EventReceiver interface {
	Receive(ctx context.Context) (*ChangeEvent, error)
	Close() error
}

// ConnectFunc establishes a new subscription connection. The subscriber
// calls it on start and after every disconnect.
type ConnectFunc func(ctx context.Context) (EventReceiver, error)

// SubscriberHandler receives subscriber callbacks. OnStale fires after
// every successful reconnect that followed a disconnect: delivery is
// at-most-once, so the local cache must be refreshed fully rather than
// trusted incrementally.
type SubscriberHandler struct {
	OnEvent func(event *ChangeEvent)
	OnStale func()
}

// Subscriber maintains a push connection with automatic reconnect. After
// ReconnectThreshold consecutive connect failures it reports unhealthy,
// telling the consumer to fall back to polling at PollInterval until push
// delivery recovers.
type Subscriber struct {
	consumerID string
	connect    ConnectFunc
	handler    SubscriberHandler
	threshold  int
	pollEvery  time.Duration
	retryDelay time.Duration

	mu                  sync.Mutex
	consecutiveFailures int
	unhealthy           bool
	everConnected       bool
}

// NewSubscriber builds a subscriber from the engine configuration.
func NewSubscriber(cfg *Config, connect ConnectFunc, handler SubscriberHandler) (*Subscriber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if connect == nil {
		return nil, errors.Wrap(ErrParamInvalid, "nil ConnectFunc")
	}
	return &Subscriber{
		consumerID: uuid.NewString(),
		connect:    connect,
		handler:    handler,
		threshold:  cfg.ReconnectThreshold,
		pollEvery:  cfg.PollInterval,
		retryDelay: time.Second,
	}, nil
}

// ConsumerID identifies this subscriber instance in logs.
func (s *Subscriber) ConsumerID() string {
	return s.consumerID
}

// Unhealthy reports whether push delivery is considered broken and the
// consumer should poll instead.
func (s *Subscriber) Unhealthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unhealthy
}

// PollInterval is the bounded refresh cadence for the polling fallback.
func (s *Subscriber) PollInterval() time.Duration {
	return s.pollEvery
}

// Run drives the connect/receive loop until ctx is done. It never returns
// an error other than ctx.Err(): connection failures are absorbed into the
// health state.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		receiver, err := s.connect(ctx)
		if err != nil {
			s.recordConnectFailure(ctx, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retryDelay):
			}
			continue
		}
		s.recordConnected()
		s.receiveLoop(ctx, receiver)
		receiver.Close()
	}
}

func (s *Subscriber) receiveLoop(ctx context.Context, receiver EventReceiver) {
	for {
		event, err := receiver.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.WarnContext(ctx, "subscriber connection lost", "consumer_id", s.consumerID, "err", err)
			}
			return
		}
		if s.handler.OnEvent != nil && event != nil {
			s.handler.OnEvent(event)
		}
	}
}

func (s *Subscriber) recordConnectFailure(ctx context.Context, err error) {
	s.mu.Lock()
	s.consecutiveFailures++
	flipped := false
	if !s.unhealthy && s.consecutiveFailures >= s.threshold {
		s.unhealthy = true
		flipped = true
	}
	failures := s.consecutiveFailures
	s.mu.Unlock()

	if flipped {
		slog.ErrorContext(ctx, "subscriber marked unhealthy, falling back to polling",
			"consumer_id", s.consumerID, "failures", failures, "poll_interval", s.pollEvery)
	} else {
		slog.WarnContext(ctx, "subscriber connect failed", "consumer_id", s.consumerID, "failures", failures, "err", err)
	}
}

func (s *Subscriber) recordConnected() {
	s.mu.Lock()
	s.consecutiveFailures = 0
	s.unhealthy = false
	first := !s.everConnected
	s.everConnected = true
	s.mu.Unlock()

	// Any reconnect after a disconnect means events may have been missed.
	if !first && s.handler.OnStale != nil {
		s.handler.OnStale()
	}
}

// NewRedisConnectFunc subscribes to the broadcaster's pub/sub channel on a
// full redis client. An empty channel name falls back to
// DefaultEventChannel.
func NewRedisConnectFunc(client *redis.Client, channel string) ConnectFunc {
	if channel == "" {
		channel = DefaultEventChannel
	}
	return func(ctx context.Context) (EventReceiver, error) {
		pubsub := client.Subscribe(ctx, channel)
		// force the SUBSCRIBE round trip so connect failures surface here
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			return nil, errors.WithMessagef(err, "subscribe failed, channel: %s", channel)
		}
		return &redisEventReceiver{pubsub: pubsub}, nil
	}
}

type redisEventReceiver struct {
	pubsub *redis.PubSub
}

func (r *redisEventReceiver) Receive(ctx context.Context) (*ChangeEvent, error) {
	msg, err := r.pubsub.ReceiveMessage(ctx)
	if err != nil {
		return nil, err
	}
	event := &ChangeEvent{}
	if err := json.Unmarshal([]byte(msg.Payload), event); err != nil {
		// malformed payload, skip rather than kill the connection
		slog.WarnContext(ctx, "dropping malformed change event", "err", err)
		return nil, nil
	}
	return event, nil
}

func (r *redisEventReceiver) Close() error {
	return r.pubsub.Close()
}
