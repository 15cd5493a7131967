package detector

import "sync"

// Notifier is the "translation resolved" fan-out, decoupled from the render
// path. Subscriptions are keyed by normalized text because several rendered
// spans may wait on the same pending key; wildcard subscribers feed the
// streaming API.
type Notifier struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]func(translated string)
	all  map[int]func(key, translated string)
}

func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[string]map[int]func(string)),
		all:  make(map[int]func(string, string)),
	}
}

// Subscribe registers a callback for one normalized key and returns its
// cancel function. Cancel is idempotent.
func (n *Notifier) Subscribe(key string, fn func(translated string)) (cancel func()) {
	n.mu.Lock()
	id := n.next
	n.next++
	if n.subs[key] == nil {
		n.subs[key] = make(map[int]func(string))
	}
	n.subs[key][id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		if set, ok := n.subs[key]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(n.subs, key)
			}
		}
		n.mu.Unlock()
	}
}

// SubscribeAll registers a callback for every resolution regardless of key.
func (n *Notifier) SubscribeAll(fn func(key, translated string)) (cancel func()) {
	n.mu.Lock()
	id := n.next
	n.next++
	n.all[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.all, id)
		n.mu.Unlock()
	}
}

// Publish delivers one resolved translation to every subscriber of its key
// and to all wildcard subscribers. Callbacks run outside the lock so a
// subscriber may re-subscribe or cancel from within its callback.
func (n *Notifier) Publish(key, translated string) {
	n.mu.Lock()
	keyed := make([]func(string), 0, len(n.subs[key]))
	for _, fn := range n.subs[key] {
		keyed = append(keyed, fn)
	}
	wild := make([]func(string, string), 0, len(n.all))
	for _, fn := range n.all {
		wild = append(wild, fn)
	}
	n.mu.Unlock()

	for _, fn := range keyed {
		fn(translated)
	}
	for _, fn := range wild {
		fn(key, translated)
	}
}
