// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package eventbus

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
)

type Topic string
type Event = any

// Bus implements an in-memory pub/sub. Subscribers choose their delivery
// semantics: a "latest" subscription keeps only the most recent event
// (size-1 channel, publish replaces), while a "queue" subscription keeps
// a bounded backlog and drops the oldest event on overflow. The decision
// pipeline must see every sensor event in order, so it uses queues; UI
// and executor consumers only care about the newest value.
type Bus struct {
	mu        sync.RWMutex
	subs      map[Topic]map[uint64]chan Event
	last      map[Topic]Event
	idCounter uint64
	closed    atomic.Bool

	dropCount atomic.Int64
}

// New returns an initialized Bus.
func New() *Bus {
	return &Bus{
		subs: make(map[Topic]map[uint64]chan Event),
		last: make(map[Topic]Event),
	}
}

// Publish publishes ev to topic and stores it as the topic's "last" event.
// Delivery is non-blocking: a full subscriber channel has its oldest item
// removed to make room, so slow subscribers never stall the publisher.
func (b *Bus) Publish(topic Topic, ev Event) {
	if b.closed.Load() {
		return
	}

	b.mu.Lock()
	b.last[topic] = ev

	// Copy the channel set so we don't hold the lock while sending.
	var chans []chan Event
	if m, ok := b.subs[topic]; ok {
		chans = make([]chan Event, 0, len(m))
		for _, ch := range m {
			chans = append(chans, ch)
		}
	}
	b.mu.Unlock()

	for _, ch := range chans {
		b.send(ch, ev)
	}
}

// send tries to deliver ev to ch. If ch is full it evicts the oldest item
// and retries once. All operations are non-blocking.
func (b *Bus) send(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}

	// Channel full: evict the oldest value, then retry the send.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
		log.Printf("[error] eventbus dropped event: %+v", ev)
		b.dropCount.Add(1)
	}
}

// Subscribe subscribes to a topic with latest-value semantics and returns a
// receive-only channel plus an unsubscribe func. If withLast is true and a
// "last" event is stored, it is delivered immediately. The subscription is
// removed and the channel closed when ctx is canceled or unsubscribe is
// called.
func (b *Bus) Subscribe(ctx context.Context, topic Topic, withLast bool) (<-chan Event, func()) {
	return b.subscribe(ctx, topic, 1, withLast)
}

// SubscribeQueue subscribes to a topic with a backlog of depth events. On
// overflow the oldest event is dropped first. Use this when every event
// matters, not just the newest one.
func (b *Bus) SubscribeQueue(ctx context.Context, topic Topic, depth int) (<-chan Event, func()) {
	if depth < 1 {
		depth = 1
	}
	return b.subscribe(ctx, topic, depth, false)
}

func (b *Bus) subscribe(ctx context.Context, topic Topic, depth int, withLast bool) (<-chan Event, func()) {
	if b.closed.Load() {
		// Subscribing after Close yields a closed channel.
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan Event, depth)
	id := atomic.AddUint64(&b.idCounter, 1)

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]chan Event)
	}
	b.subs[topic][id] = ch

	var last Event
	var hasLast bool
	if withLast {
		last, hasLast = b.last[topic]
	}
	b.mu.Unlock()

	if withLast && hasLast {
		b.send(ch, last)
	}

	done := make(chan struct{})
	unsub := func() {
		select {
		case <-done:
			// already unsubscribed
		default:
			close(done)
		}
	}

	// cleanup on ctx cancel or explicit unsubscribe
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}

		b.mu.Lock()
		if m, ok := b.subs[topic]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(b.subs, topic)
			}
		}
		b.mu.Unlock()
		close(ch)
	}()

	return ch, unsub
}

// GetLast returns the last published event for a topic (if any).
func (b *Bus) GetLast(topic Topic) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.last[topic]
	return v, ok
}

// DropCount reports how many events were discarded because a subscriber
// channel was full even after evicting its oldest item.
func (b *Bus) DropCount() int64 {
	return b.dropCount.Load()
}

// Close closes the bus and all subscriber channels. After Close, Publish is
// a no-op and Subscribe returns a closed channel.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return // already closed
	}
	b.mu.Lock()
	for _, m := range b.subs {
		for _, ch := range m {
			close(ch)
		}
	}
	b.subs = nil
	b.last = nil
	b.mu.Unlock()
}
