package auth

import (
	"sort"
	"sync"

	"github.com/felixgeelhaar/macrocam/internal/session"
)

// Notifier fans session events out to listeners.
// Emissions are serialized, so every listener sees events in emission order.
type Notifier struct {
	mu        sync.Mutex
	emitMu    sync.Mutex
	listeners map[int]func(session.Event)
	next      int
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{listeners: make(map[int]func(session.Event))}
}

// Subscribe adds fn and returns a func that removes it.
func (n *Notifier) Subscribe(fn func(session.Event)) (unsubscribe func()) {
	n.mu.Lock()
	id := n.next
	n.next++
	n.listeners[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		})
	}
}

// Emit delivers ev to every listener in subscription order.
func (n *Notifier) Emit(ev session.Event) {
	n.emitMu.Lock()
	defer n.emitMu.Unlock()

	n.mu.Lock()
	ids := make([]int, 0, len(n.listeners))
	for id := range n.listeners {
		ids = append(ids, id)
	}
	n.mu.Unlock()
	sort.Ints(ids)

	for _, id := range ids {
		n.mu.Lock()
		fn, ok := n.listeners[id]
		n.mu.Unlock()
		if ok {
			fn(ev)
		}
	}
}

// Len returns the number of listeners.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}
