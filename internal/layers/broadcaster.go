package layers

import "sync"

// Broadcaster fans snapshots out to subscribers. Each subscriber has a one-slot
// buffer holding the newest undelivered snapshot, so a slow reader skips
// intermediate versions instead of blocking the registry.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Snapshot
	nextID int
	latest Snapshot
	seeded bool
	closed bool
}

// NewBroadcaster creates a broadcaster with no subscribers
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Snapshot)}
}

// Publish hands s to every subscriber, replacing any snapshot still waiting.
// Snapshots older than the latest published one are ignored.
func (b *Broadcaster) Publish(s Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || (b.seeded && s.Version < b.latest.Version) {
		return
	}
	b.latest = s
	b.seeded = true

	for _, ch := range b.subs {
		offer(ch, s)
	}
}

// Subscribe registers a subscriber. The current snapshot, if any, is queued
// immediately. The returned cancel func closes the channel and is idempotent.
func (b *Broadcaster) Subscribe() (<-chan Snapshot, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if b.seeded {
		ch <- b.latest
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Subscribers returns the number of live subscribers
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel; later Publish calls are dropped
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// offer replaces whatever is buffered in ch with s. Only the broadcaster sends
// on ch and it holds b.mu, so the final send cannot block.
func offer(ch chan Snapshot, s Snapshot) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- s
}
