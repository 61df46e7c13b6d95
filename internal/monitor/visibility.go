package monitor

import "sync"

// VisibilityBroadcaster fans one host visibility signal out to every
// subscribed sampler. The host registers its listener once against this
// broadcaster instead of once per animated instance, so multi-instance
// pages cannot leak listeners.
type VisibilityBroadcaster struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]func(visible bool)
	visible bool
}

// NewVisibilityBroadcaster starts in the visible state.
func NewVisibilityBroadcaster() *VisibilityBroadcaster {
	return &VisibilityBroadcaster{
		subs:    make(map[int]func(bool)),
		visible: true,
	}
}

// Subscribe registers fn, immediately delivers the current state, and
// returns an unsubscribe function.
func (b *VisibilityBroadcaster) Subscribe(fn func(visible bool)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	visible := b.visible
	b.mu.Unlock()

	fn(visible)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Set broadcasts a visibility change to all subscribers.
func (b *VisibilityBroadcaster) Set(visible bool) {
	b.mu.Lock()
	if b.visible == visible {
		b.mu.Unlock()
		return
	}
	b.visible = visible
	subs := make([]func(bool), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(visible)
	}
}

// Visible returns the current state.
func (b *VisibilityBroadcaster) Visible() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.visible
}
