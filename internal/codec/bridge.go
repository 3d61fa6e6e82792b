/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package codec

// EventKind classifies codec callback events.
type EventKind int

const (
	// EventOutputAvailable signals that a codec produced output and the
	// engine loop should run its pipelines.
	EventOutputAvailable EventKind = iota
	// EventInputAvailable signals that a codec can accept input again.
	EventInputAvailable
	// EventError carries an asynchronous codec failure.
	EventError
)

// Event is one codec callback crossing goroutines.
type Event struct {
	Kind EventKind
	Err  error
}

// Bridge hands codec callbacks from codec-owned goroutines to the engine
// loop through a bounded channel. Callbacks never touch pipeline state;
// the loop drains the bridge and reacts on its own goroutine.
type Bridge struct {
	events chan Event
}

// NewBridge creates a bridge holding at most capacity undelivered events.
func NewBridge(capacity int) *Bridge {
	return &Bridge{events: make(chan Event, capacity)}
}

// Post hands an event to the loop, blocking while the bridge is full.
func (b *Bridge) Post(ev Event) {
	b.events <- ev
}

// TryPost hands an event to the loop unless the bridge is full. Readiness
// events may be coalesced this way; the loop polls regardless.
func (b *Bridge) TryPost(ev Event) bool {
	select {
	case b.events <- ev:
		return true
	default:
		return false
	}
}

// C exposes the receive side for the loop's select.
func (b *Bridge) C() <-chan Event {
	return b.events
}

// Drain applies handle to every event currently queued, without blocking.
func (b *Bridge) Drain(handle func(Event)) {
	for {
		select {
		case ev := <-b.events:
			handle(ev)
		default:
			return
		}
	}
}
