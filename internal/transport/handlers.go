package transport

import (
	"slices"
	"sync"
)

// Handlers is a table of event handlers for Client implementations
type Handlers struct {
	mu     sync.RWMutex
	nextID int
	table  map[EventName]map[int]Handler
}

// On registers h for name and returns its subscription
func (hs *Handlers) On(name EventName, h Handler) Subscription {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if hs.table == nil {
		hs.table = make(map[EventName]map[int]Handler)
	}
	if hs.table[name] == nil {
		hs.table[name] = make(map[int]Handler)
	}
	hs.nextID++
	id := hs.nextID
	hs.table[name][id] = h

	var once sync.Once
	return SubscriptionFunc(func() {
		once.Do(func() {
			hs.mu.Lock()
			defer hs.mu.Unlock()
			delete(hs.table[name], id)
		})
	})
}

// Count returns the number of handlers registered for name
func (hs *Handlers) Count(name EventName) int {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return len(hs.table[name])
}

// Total returns the number of registered handlers
func (hs *Handlers) Total() int {
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	n := 0
	for _, m := range hs.table {
		n += len(m)
	}
	return n
}

// Emit calls every handler registered for ev.Name in registration order
func (hs *Handlers) Emit(ev Event) {
	hs.mu.RLock()
	ids := make([]int, 0, len(hs.table[ev.Name]))
	for id := range hs.table[ev.Name] {
		ids = append(ids, id)
	}
	handlers := make([]Handler, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		handlers = append(handlers, hs.table[ev.Name][id])
	}
	hs.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
