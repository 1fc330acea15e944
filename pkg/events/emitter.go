package events

import (
	"sync"

	"github.com/samuelg/go-ari-client/pkg/resource"
)

type listenerEntry struct {
	id   int64
	once bool
	fn   resource.Handler
}

// Emitter is an ordered listener table for one scope. Dispatch iterates a
// snapshot, so mutations during dispatch apply to subsequent events only.
type Emitter struct {
	mu     sync.Mutex
	seq    int64
	lists  map[string][]*listenerEntry
	report func(evt *resource.Event, recovered any)
}

// NewEmitter creates an empty listener table.
func NewEmitter() *Emitter {
	return &Emitter{lists: make(map[string][]*listenerEntry)}
}

// SetReporter installs the sink receiving recovered listener panics.
func (e *Emitter) SetReporter(fn func(evt *resource.Event, recovered any)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.report = fn
}

// On appends a listener for the event type, preserving registration order.
func (e *Emitter) On(eventType string, h resource.Handler) resource.Subscription {
	return e.add(eventType, false, h)
}

// Once appends a listener removed before its first invocation.
func (e *Emitter) Once(eventType string, h resource.Handler) resource.Subscription {
	return e.add(eventType, true, h)
}

func (e *Emitter) add(eventType string, once bool, h resource.Handler) resource.Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	entry := &listenerEntry{id: e.seq, once: once, fn: h}
	e.lists[eventType] = append(e.lists[eventType], entry)
	return &subscription{emitter: e, eventType: eventType, id: entry.id}
}

// RemoveAll drops every listener for the event type; other types are
// unaffected.
func (e *Emitter) RemoveAll(eventType string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.lists, eventType)
}

// Count returns the number of listeners for one event type.
func (e *Emitter) Count(eventType string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.lists[eventType])
}

// Total returns the number of listeners across all event types.
func (e *Emitter) Total() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, list := range e.lists {
		total += len(list)
	}
	return total
}

// Emit invokes the listeners registered for the event's type in
// registration order. Once listeners are removed before being invoked. A
// panicking listener never prevents subsequent listeners from running.
func (e *Emitter) Emit(evt *resource.Event) {
	e.mu.Lock()
	list := e.lists[evt.Type]
	snapshot := make([]*listenerEntry, len(list))
	copy(snapshot, list)

	kept := list[:0]
	for _, entry := range list {
		if !entry.once {
			kept = append(kept, entry)
		}
	}
	if len(kept) == 0 {
		delete(e.lists, evt.Type)
	} else {
		e.lists[evt.Type] = kept
	}
	report := e.report
	e.mu.Unlock()

	for _, entry := range snapshot {
		invoke(entry.fn, evt, report)
	}
}

func invoke(fn resource.Handler, evt *resource.Event, report func(*resource.Event, any)) {
	defer func() {
		if recovered := recover(); recovered != nil && report != nil {
			report(evt, recovered)
		}
	}()
	fn(evt)
}

type subscription struct {
	emitter   *Emitter
	eventType string
	id        int64
}

// Remove detaches exactly the registration that produced this subscription.
// Removing twice is a no-op.
func (s *subscription) Remove() {
	e := s.emitter
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.lists[s.eventType]
	for i, entry := range list {
		if entry.id == s.id {
			list = append(list[:i], list[i+1:]...)
			if len(list) == 0 {
				delete(e.lists, s.eventType)
			} else {
				e.lists[s.eventType] = list
			}
			return
		}
	}
}
