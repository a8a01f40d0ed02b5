package editorial

import (
	"context"
	"testing"
)

func TestNewChangeEvent(t *testing.T) {
	event := NewChangeEvent(EventStoryCreated, 7, 10, map[string]any{"stage": StageDraft})
	if event.ID == "" {
		t.Error("event id must be set")
	}
	if event.Type != EventStoryCreated || event.EntityID != 7 || event.ActorID != 10 {
		t.Errorf("event = %+v; want type %s entity 7 actor 10", event, EventStoryCreated)
	}
	if event.Timestamp == 0 {
		t.Error("event timestamp must be set")
	}
	other := NewChangeEvent(EventStoryCreated, 7, 10, nil)
	if other.ID == event.ID {
		t.Error("event ids must be unique")
	}
}

func TestLocalBroadcaster_FansOut(t *testing.T) {
	b := NewLocalBroadcaster()
	first := b.Subscribe()
	second := b.Subscribe()

	event := NewChangeEvent(EventNoteRaised, 3, 20, nil)
	if err := b.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for i, sub := range []<-chan *ChangeEvent{first, second} {
		select {
		case got := <-sub:
			if got.ID != event.ID {
				t.Errorf("subscriber %d got event %s; want %s", i, got.ID, event.ID)
			}
		default:
			t.Errorf("subscriber %d received nothing", i)
		}
	}
}

func TestLocalBroadcaster_SlowConsumerDropsInsteadOfBlocking(t *testing.T) {
	b := NewLocalBroadcaster()
	sub := b.Subscribe()

	// overfill the subscriber buffer; Publish must never block
	for i := 0; i < 100; i++ {
		if err := b.Publish(context.Background(), NewChangeEvent(EventTaskUpdated, int64(i), 1, nil)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	delivered := 0
	for {
		select {
		case <-sub:
			delivered++
			continue
		default:
		}
		break
	}
	if delivered == 0 || delivered >= 100 {
		t.Errorf("delivered = %d; want some events kept and the overflow dropped", delivered)
	}
}

func TestLocalBroadcaster_Unsubscribe(t *testing.T) {
	b := NewLocalBroadcaster()
	gone := b.Subscribe()
	kept := b.Subscribe()

	b.Unsubscribe(gone)
	if _, open := <-gone; open {
		t.Error("unsubscribed channel must be closed")
	}

	event := NewChangeEvent(EventStoryAssigned, 5, 1, nil)
	if err := b.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	select {
	case got := <-kept:
		if got.ID != event.ID {
			t.Errorf("kept subscriber got event %s; want %s", got.ID, event.ID)
		}
	default:
		t.Error("remaining subscriber received nothing")
	}

	// unknown channel is a no-op
	b.Unsubscribe(make(chan *ChangeEvent))
	b.Unsubscribe(gone)
}

func TestLocalBroadcaster_RejectsNilEvent(t *testing.T) {
	if err := NewLocalBroadcaster().Publish(context.Background(), nil); err == nil {
		t.Error("nil event must be rejected")
	}
}
