package docstore

import (
	"context"
	"sync"
)

// Subscription delivers snapshots of one collection. Delivery is latest-wins:
// a consumer that falls behind skips intermediate snapshots and only sees the
// most recent one, which always covers every write confirmed before it.
type Subscription struct {
	path    Path
	ch      chan Snapshot
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
	seq     uint64
	onClose func()
}

// NewSubscription creates a subscription for path. onClose runs once when
// the subscription is closed.
func NewSubscription(path Path, onClose func()) *Subscription {
	return &Subscription{
		path:    path,
		ch:      make(chan Snapshot, 1),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// Path returns the subscribed collection path.
func (s *Subscription) Path() Path {
	return s.path
}

// C returns the snapshot channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Snapshot {
	return s.ch
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Publish hands snap to the consumer, replacing any snapshot it has not read
// yet. It never blocks and reports false once the subscription is closed.
func (s *Subscription) Publish(snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.seq++
	snap.Seq = s.seq
	snap.Path = s.path
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
	return true
}

// Close ends the subscription. Pending snapshots are discarded. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	select {
	case <-s.ch:
	default:
	}
	close(s.done)
	close(s.ch)
	s.mu.Unlock()

	if s.onClose != nil {
		s.onClose()
	}
}

// BindContext closes the subscription when ctx is done.
func (s *Subscription) BindContext(ctx context.Context) {
	stop := context.AfterFunc(ctx, s.Close)
	go func() {
		<-s.done
		stop()
	}()
}

// Hub tracks live subscriptions per collection for store backends.
type Hub struct {
	mu    sync.Mutex
	subs  map[string]map[*Subscription]struct{}
	paths map[string]Path
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs:  make(map[string]map[*Subscription]struct{}),
		paths: make(map[string]Path),
	}
}

// Subscribe registers a new subscription on path.
func (h *Hub) Subscribe(path Path) *Subscription {
	key := path.String()
	var sub *Subscription
	sub = NewSubscription(path, func() { h.remove(key, sub) })

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[key] == nil {
		h.subs[key] = make(map[*Subscription]struct{})
	}
	h.subs[key][sub] = struct{}{}
	h.paths[key] = path
	return sub
}

func (h *Hub) remove(key string, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[key], sub)
	if len(h.subs[key]) == 0 {
		delete(h.subs, key)
		delete(h.paths, key)
	}
}

// Publish sends a snapshot of path to every subscriber. A non-nil err is
// delivered as an error snapshot.
func (h *Hub) Publish(path Path, docs []Document, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[path.String()] {
		if err != nil {
			sub.Publish(Snapshot{Err: err})
			continue
		}
		sub.Publish(Snapshot{Docs: CloneDocs(docs)})
	}
}

// PublishTo sends a snapshot to a single subscriber.
func (h *Hub) PublishTo(sub *Subscription, docs []Document, err error) {
	if err != nil {
		sub.Publish(Snapshot{Err: err})
		return
	}
	sub.Publish(Snapshot{Docs: CloneDocs(docs)})
}

// HasSubscribers reports whether path has at least one live subscription.
func (h *Hub) HasSubscribers(path Path) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[path.String()]) > 0
}

// Paths lists the collections that currently have subscribers.
func (h *Hub) Paths() []Path {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Path, 0, len(h.paths))
	for _, p := range h.paths {
		out = append(out, p)
	}
	return out
}

// Count returns the number of live subscriptions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Subscription
	for _, set := range h.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range all {
		sub.Close()
	}
}
