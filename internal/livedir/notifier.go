package livedir

import (
	"sync"
)

// change is one committed mutation waiting to be delivered. Synthetic
// entries for uncached paths carry Version 0.
type change struct {
	path  string
	entry PathEntry
}

type listener struct {
	id uint64
	fn func(PathEntry)
}

// notifier is the per-path listener registry. Listeners run synchronously
// on the goroutine that committed the change, after the directory lock is
// released, so they may call back into the directory.
type notifier struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[string][]listener
	delivered map[string]uint64
}

func newNotifier() *notifier {
	return &notifier{
		listeners: make(map[string][]listener),
		delivered: make(map[string]uint64),
	}
}

// add registers fn for path and returns a function that removes it.
func (n *notifier) add(path string, fn func(PathEntry)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := n.nextID
	n.listeners[path] = append(n.listeners[path], listener{id: id, fn: fn})

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		ls := n.listeners[path]
		for i, l := range ls {
			if l.id == id {
				n.listeners[path] = append(ls[:i:i], ls[i+1:]...)
				break
			}
		}
		if len(n.listeners[path]) == 0 {
			delete(n.listeners, path)
			delete(n.delivered, path)
		}
	}
}

func (n *notifier) has(path string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners[path]) > 0
}

func (n *notifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, ls := range n.listeners {
		total += len(ls)
	}
	return total
}

// dispatch delivers changes in order. A versioned snapshot is delivered at
// most once per path and never after a newer one.
func (n *notifier) dispatch(changes []change) {
	for _, c := range changes {
		n.mu.Lock()
		ls := n.listeners[c.path]
		if len(ls) == 0 {
			n.mu.Unlock()
			continue
		}
		if v := c.entry.Version; v != 0 {
			if v <= n.delivered[c.path] {
				n.mu.Unlock()
				continue
			}
			n.delivered[c.path] = v
		}
		ls = append([]listener(nil), ls...)
		n.mu.Unlock()

		for _, l := range ls {
			l.fn(c.entry)
		}
	}
}
