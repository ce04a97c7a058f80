package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
		return Event{}
	}
}

func TestPublishDeliversToTypedAndWildcardHandlers(t *testing.T) {
	b := NewEventBus()

	typed := make(chan Event, 1)
	all := make(chan Event, 1)
	b.Subscribe(EventTypeMoodChanged, func(e Event) { typed <- e })
	b.SubscribeAll(func(e Event) { all <- e })
	b.Subscribe(EventTypeCleared, func(Event) { t.Error("unexpected handler") })

	b.Publish(Event{Type: EventTypeMoodChanged, Data: map[string]any{"mood": "thinking"}})

	assert.Equal(t, "thinking", receive(t, typed).Data["mood"])
	assert.Equal(t, EventTypeMoodChanged, receive(t, all).Type)
}

func TestSubscribeMultiple(t *testing.T) {
	b := NewEventBus()
	got := make(chan Event, 2)
	b.SubscribeMultiple([]EventType{EventTypeNarrationEnded, EventTypeNarrationFailed}, func(e Event) { got <- e })

	b.Publish(Event{Type: EventTypeNarrationFailed})
	assert.Equal(t, EventTypeNarrationFailed, receive(t, got).Type)
	b.Publish(Event{Type: EventTypeNarrationEnded})
	assert.Equal(t, EventTypeNarrationEnded, receive(t, got).Type)
}

func TestPublishAssignsIncreasingSeq(t *testing.T) {
	b := NewEventBus()
	seqs := make(chan Event, 2)
	b.SubscribeAll(func(e Event) { seqs <- e })

	b.Publish(Event{Type: EventTypeTranscript})
	b.Publish(Event{Type: EventTypeTranscript})

	a, c := receive(t, seqs).Seq, receive(t, seqs).Seq
	require.NotZero(t, a)
	require.NotZero(t, c)
	assert.NotEqual(t, a, c)
}
