package sqlstore

import (
	"context"
	"sync"
	"time"

	"github.com/julianstephens/studyplanner/internal/docstore"
)

// ListFunc loads the current contents of a collection.
type ListFunc func(ctx context.Context, path docstore.Path) ([]docstore.Document, error)

// Feed republishes collection snapshots to subscribers. All publishing
// happens on the feed goroutine so snapshots of one collection are delivered
// in the order they were read.
type Feed struct {
	hub   *docstore.Hub
	list  ListFunc
	mu    sync.Mutex
	dirty map[string]docstore.Path
	wake  chan struct{}
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewFeed creates a feed reading collections through list.
func NewFeed(list ListFunc) *Feed {
	return &Feed{
		hub:   docstore.NewHub(),
		list:  list,
		dirty: make(map[string]docstore.Path),
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Subscribe registers a subscription and schedules its first snapshot.
func (f *Feed) Subscribe(ctx context.Context, path docstore.Path) *docstore.Subscription {
	sub := f.hub.Subscribe(path)
	sub.BindContext(ctx)
	f.MarkDirty(path)
	return sub
}

// MarkDirty schedules a republish of path.
func (f *Feed) MarkDirty(path docstore.Path) {
	f.mu.Lock()
	f.dirty[path.String()] = path
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// MarkAll schedules a republish of every subscribed collection.
func (f *Feed) MarkAll() {
	for _, p := range f.hub.Paths() {
		f.MarkDirty(p)
	}
}

// Subscribers returns the number of live subscriptions.
func (f *Feed) Subscribers() int {
	return f.hub.Count()
}

// Run processes republish requests until Close. tick and onTick are
// optional: on every tick, onTick reports whether an external change was
// detected, in which case every subscribed collection is republished.
func (f *Feed) Run(tick <-chan time.Time, onTick func() bool) {
	defer close(f.done)
	for {
		select {
		case <-f.stop:
			return
		case <-f.wake:
		case <-tick:
			if onTick == nil || !onTick() {
				continue
			}
			f.MarkAll()
			// Drain the wake signal raised by MarkAll; flush below covers it.
			select {
			case <-f.wake:
			default:
			}
		}
		f.flush()
	}
}

func (f *Feed) flush() {
	f.mu.Lock()
	pending := f.dirty
	f.dirty = make(map[string]docstore.Path)
	f.mu.Unlock()

	for _, path := range pending {
		if !f.hub.HasSubscribers(path) {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		docs, err := f.list(ctx, path)
		cancel()
		f.hub.Publish(path, docs, err)
	}
}

// Close stops the feed goroutine and ends all subscriptions.
func (f *Feed) Close() {
	f.once.Do(func() {
		close(f.stop)
	})
	f.hub.Close()
}

// Wait blocks until Run has returned.
func (f *Feed) Wait() {
	<-f.done
}
