// Package bus carries progress events from the reasoning loop and the
// research workflow to whatever front-end is attached. Subscribers get a
// buffered channel each; a slow subscriber drops events rather than
// stalling the publisher.
package bus

import (
	"sync"
	"time"

	"github.com/InfamousPlatypus/Lucenta/internal/logging"
)

// Event types published by the orchestration layers.
const (
	TypeThinking    = "loop.thinking"
	TypeAction      = "loop.action"
	TypeObservation = "loop.observation"
	TypeAnswer      = "loop.answer"
	TypePlan        = "workflow.plan"
	TypeStep        = "workflow.step"
	TypeApproval    = "workflow.approval"
	TypeReport      = "workflow.report"
	TypeError       = "error"
)

// Event is one progress notification.
type Event struct {
	Type    string
	Message string
	Data    map[string]any
	Time    time.Time
}

// Handler consumes events.
type Handler func(Event)

type subscription struct {
	eventType string // "" matches every type
	ch        chan Event
	done      chan struct{}
}

// Bus is an in-process publish/subscribe hub.
type Bus struct {
	mu     sync.Mutex
	subs   []*subscription
	wg     sync.WaitGroup
	closed bool
	log    *logging.Logger
}

// New creates a Bus.
func New() *Bus {
	return &Bus{log: logging.Global().WithComponent("Bus")}
}

// Subscribe registers a handler for one event type, or all types when
// eventType is empty. It returns an unsubscribe function.
func (b *Bus) Subscribe(eventType string, handler Handler) func() {
	sub := &subscription{
		eventType: eventType,
		ch:        make(chan Event, 64),
		done:      make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.subs = append(b.subs, sub)
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		for {
			select {
			case ev, ok := <-sub.ch:
				if !ok {
					return
				}
				handler(ev)
			case <-sub.done:
				return
			}
		}
	}()

	return func() { b.unsubscribe(sub) }
}

func (b *Bus) unsubscribe(target *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub.done)
			return
		}
	}
}

// Publish delivers an event to matching subscribers without blocking.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if sub.eventType != "" && sub.eventType != ev.Type {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.log.Debug("dropping %s event for slow subscriber", ev.Type)
		}
	}
}

// Close stops delivery and waits for subscriber goroutines to drain.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
	b.mu.Unlock()

	b.wg.Wait()
}
