package editorial

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ChangeEvent is a transient notification about a state change. It is
// relayed, never persisted; delivery is at-most-once with no replay log.
type ChangeEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	EntityID  int64          `json:"entity_id"`
	ActorID   int64          `json:"actor_id"`
	Timestamp int64          `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewChangeEvent stamps an event with a fresh id and the current time.
func NewChangeEvent(eventType string, entityID int64, actorID int64, metadata map[string]any) *ChangeEvent {
	return &ChangeEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		EntityID:  entityID,
		ActorID:   actorID,
		Timestamp: time.Now().Unix(),
		Metadata:  metadata,
	}
}

// Broadcaster fans change events out to subscribed processes. Publish is
// best-effort: the engine dispatches it after commit, logs failures, and
// never surfaces them to the caller of the originating operation.
type Broadcaster interface {
	Publish(ctx context.Context, event *ChangeEvent) error
}

// DefaultEventChannel is the pub/sub channel the redis broadcaster and
// receiver use unless configured otherwise.
const DefaultEventChannel = "editorial:events"

// NewRedisBroadcaster publishes events as JSON onto a redis pub/sub
// channel. An empty channel name falls back to DefaultEventChannel.
func NewRedisBroadcaster(redisClient redis.Cmdable, channel string) Broadcaster {
	if channel == "" {
		channel = DefaultEventChannel
	}
	return &redisBroadcaster{redisClient: redisClient, channel: channel}
}

type redisBroadcaster struct {
	redisClient redis.Cmdable
	channel     string
}

func (b *redisBroadcaster) Publish(ctx context.Context, event *ChangeEvent) error {
	if event == nil {
		return errors.New("nil ChangeEvent")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.WithMessagef(err, "marshal event failed, type: %s", event.Type)
	}
	if err := b.redisClient.Publish(ctx, b.channel, payload).Err(); err != nil {
		return errors.WithMessagef(err, "publish event failed, type: %s, channel: %s", event.Type, b.channel)
	}
	return nil
}

// NewLocalBroadcaster returns an in-process broadcaster for tests and
// single-binary embeddings. Subscribe returns a buffered channel; slow
// consumers drop events rather than block the publisher.
func NewLocalBroadcaster() *LocalBroadcaster {
	return &LocalBroadcaster{}
}

type LocalBroadcaster struct {
	mu   sync.RWMutex
	subs []chan *ChangeEvent
}

func (b *LocalBroadcaster) Publish(ctx context.Context, event *ChangeEvent) error {
	if event == nil {
		return errors.New("nil ChangeEvent")
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub <- event:
		default:
			// consumer is behind; at-most-once, no replay
		}
	}
	return nil
}

func (b *LocalBroadcaster) Subscribe() <-chan *ChangeEvent {
	ch := make(chan *ChangeEvent, 64)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe detaches a channel returned by Subscribe and closes it.
// Unknown channels are ignored. Publish holds the read lock while sending,
// so a detached channel is never written to after close.
func (b *LocalBroadcaster) Unsubscribe(ch <-chan *ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub)
			return
		}
	}
}
