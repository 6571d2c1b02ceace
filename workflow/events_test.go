package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_SubscribeAndDrop(t *testing.T) {
	bus := NewEventBus(1, nil)
	ch, cancel := bus.Subscribe()
	assert.Equal(t, 1, bus.Subscribers())

	bus.Publish(Event{Type: EventRunStarted})
	bus.Publish(Event{Type: EventRunFinished})

	ev := <-ch
	assert.Equal(t, EventRunStarted, ev.Type)
	assert.Equal(t, int64(1), bus.Dropped())

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, bus.Subscribers())

	// 无订阅者时发布不阻塞
	bus.Publish(Event{Type: EventRunStarted})
}

func TestMultiSink(t *testing.T) {
	var a, b []EventType
	sink := MultiSink{
		EventSinkFunc(func(e Event) { a = append(a, e.Type) }),
		nil,
		EventSinkFunc(func(e Event) { b = append(b, e.Type) }),
	}
	sink.Publish(Event{Type: EventStepCompleted})
	assert.Equal(t, []EventType{EventStepCompleted}, a)
	assert.Equal(t, []EventType{EventStepCompleted}, b)
}
