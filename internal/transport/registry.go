package transport

import "sync"

// Registry collects subscriptions belonging to one scope (a joined channel,
// a chat protocol session) so that teardown can release all of them at once.
type Registry struct {
	mu   sync.Mutex
	subs []Subscription
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// On registers h on c and keeps the subscription
func (r *Registry) On(c Client, name EventName, h Handler) {
	r.Add(c.On(name, h))
}

// Add keeps sub until the next Close
func (r *Registry) Add(sub Subscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, sub)
}

// Len returns the number of held subscriptions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Close unsubscribes everything in reverse registration order. It is safe to
// call more than once.
func (r *Registry) Close() {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for i := len(subs) - 1; i >= 0; i-- {
		subs[i].Unsubscribe()
	}
}
