package workflow

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventType tags engine events.
type EventType string

const (
	EventRunStarted      EventType = "run.started"
	EventStepCompleted   EventType = "step.completed"
	EventStepFailed      EventType = "step.failed"
	EventStepSkipped     EventType = "step.skipped"
	EventRunCheckpointed EventType = "run.checkpointed"
	EventRunFinished     EventType = "run.finished"
)

// Event is a progress notification from the engine. Payload fields are masked.
type Event struct {
	Type        EventType       `json:"type"`
	WorkflowID  string          `json:"workflowId"`
	ExecutionID string          `json:"executionId"`
	StepID      string          `json:"stepId,omitempty"`
	StepType    StepType        `json:"stepType,omitempty"`
	Status      string          `json:"status,omitempty"`
	Group       int             `json:"group,omitempty"`
	Attempts    int             `json:"attempts,omitempty"`
	Duration    time.Duration   `json:"duration,omitempty"`
	ErrorCode   string          `json:"errorCode,omitempty"`
	Error       string          `json:"error,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Run         *ExecutionBrief `json:"run,omitempty"`
}

// ExecutionBrief summarizes a finished run inside an event.
type ExecutionBrief struct {
	Status          ExecutionStatus `json:"status"`
	StepCount       int             `json:"stepCount"`
	FailedStepCount int             `json:"failedStepCount"`
}

// EventSink receives engine events. Publish must not block.
type EventSink interface {
	Publish(e Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(e Event)

// Publish implements EventSink.
func (f EventSinkFunc) Publish(e Event) { f(e) }

// MultiSink fans an event out to several sinks.
type MultiSink []EventSink

// Publish implements EventSink.
func (m MultiSink) Publish(e Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(e)
		}
	}
}

// EventBus is an in-process broadcaster with buffered subscriber channels.
// A slow subscriber drops events instead of stalling the engine.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	buffer  int
	dropped atomic.Int64
	logger  *zap.Logger
}

// NewEventBus creates a bus whose subscriber channels hold buffer events.
func NewEventBus(buffer int, logger *zap.Logger) *EventBus {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		subs:   make(map[int]chan Event),
		buffer: buffer,
		logger: logger.With(zap.String("component", "event_bus")),
	}
}

// Subscribe returns a channel of events and a cancel func that closes it.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish implements EventSink.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
			b.logger.Debug("event dropped for slow subscriber", zap.String("type", string(e.Type)))
		}
	}
}

// Dropped returns how many deliveries were discarded.
func (b *EventBus) Dropped() int64 { return b.dropped.Load() }

// Subscribers returns the number of live subscribers.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
