// Package events fans registry, overlay and state changes out to the shell
// surface over server-sent events.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	json "github.com/go-json-experiment/json"
)

// Feed names.
const (
	FeedTabs    = "tabs"
	FeedOverlay = "overlay"
	FeedState   = "state"
)

const subscriberBufSize = 64

// Event is one message on a feed. Payload is JSON.
type Event struct {
	Feed    string
	Payload []byte
}

type subscriber struct {
	ch    chan Event
	feeds map[string]bool
}

// Broker delivers events to subscribers without ever blocking the publisher.
// A subscriber that falls behind loses events rather than stalling tab
// operations.
type Broker struct {
	mu      sync.RWMutex
	subs    map[int64]*subscriber
	nextID  atomic.Int64
	dropped atomic.Int64
	onDrop  func(feed string)
}

// NewBroker creates a Broker. onDrop, if set, is called for every event a
// slow subscriber missed.
func NewBroker(onDrop func(feed string)) *Broker {
	return &Broker{subs: make(map[int64]*subscriber), onDrop: onDrop}
}

// Subscribe registers a subscriber for the given feeds; no feeds means all.
func (b *Broker) Subscribe(feeds ...string) (int64, <-chan Event) {
	var filter map[string]bool
	if len(feeds) > 0 {
		filter = make(map[string]bool, len(feeds))
		for _, f := range feeds {
			filter[f] = true
		}
	}
	id := b.nextID.Add(1)
	sub := &subscriber{ch: make(chan Event, subscriberBufSize), feeds: filter}
	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids are ignored.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(sub.ch)
	}
	b.mu.Unlock()
}

// Publish encodes v and sends it on feed.
func (b *Broker) Publish(feed string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Warn("event encode failed", "feed", feed, "error", err)
		return
	}
	evt := Event{Feed: feed, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.feeds != nil && !sub.feeds[feed] {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.dropped.Add(1)
			if b.onDrop != nil {
				b.onDrop(feed)
			}
		}
	}
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns the total number of undelivered events.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}
