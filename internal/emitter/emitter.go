// internal/emitter/emitter.go

// Package emitter provides a typed observer list with multi-shot and
// single-shot subscriptions. Handlers run synchronously in attach order,
// which is what serializes plugin execution for a single lobby event.
package emitter

import (
	"sync"

	"github.com/google/uuid"
)

// Token identifies one subscription for later removal. Plugins must keep
// their tokens and call Off on detach, otherwise handlers leak across
// repeated lobby lifecycles.
type Token struct {
	id uuid.UUID
}

type subscriber[T any] struct {
	id   uuid.UUID
	fn   func(T)
	once bool
}

// Emitter is a typed event source. The zero value is not usable; use New.
type Emitter[T any] struct {
	mu   sync.Mutex
	subs []subscriber[T]
}

func New[T any]() *Emitter[T] {
	return &Emitter[T]{}
}

// On registers fn for every future Emit until Off is called with the
// returned token.
func (e *Emitter[T]) On(fn func(T)) Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := uuid.New()
	e.subs = append(e.subs, subscriber[T]{id: id, fn: fn})
	return Token{id: id}
}

// Once registers fn for the next Emit only. The subscription is removed
// before fn runs, so re-subscribing from inside fn is safe.
func (e *Emitter[T]) Once(fn func(T)) Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := uuid.New()
	e.subs = append(e.subs, subscriber[T]{id: id, fn: fn, once: true})
	return Token{id: id}
}

// Off removes the subscription for tok. Removing an already-removed or
// never-issued token is a no-op.
func (e *Emitter[T]) Off(tok Token) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s.id == tok.id {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return
		}
	}
}

// Emit calls every subscriber with v, in attach order, on the calling
// goroutine. Once-subscribers are dropped before their handler runs.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	snapshot := make([]subscriber[T], len(e.subs))
	copy(snapshot, e.subs)
	kept := e.subs[:0]
	for _, s := range e.subs {
		if !s.once {
			kept = append(kept, s)
		}
	}
	e.subs = kept
	e.mu.Unlock()

	for _, s := range snapshot {
		s.fn(v)
	}
}

// Len reports the current number of subscribers. Used by teardown checks.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}
