// Package events fans sync notifications out to the live connections of a
// user. Each connection owns a one-slot channel, so bursts of changes
// collapse into a single wake-up.
package events

import (
	"sync"
)

// Subscription is one live connection of a user. C receives a value when
// the user has new data on the server and is closed when the connection is
// evicted.
type Subscription struct {
	C      <-chan struct{}
	c      chan struct{}
	userID string
	closed bool
}

// Broker tracks subscriptions per user.
type Broker struct {
	mu         sync.Mutex
	maxDevices int
	subs       map[string][]*Subscription
}

// NewBroker returns a broker that keeps at most maxDevices connections per
// user. Values below 1 are treated as 1.
func NewBroker(maxDevices int) *Broker {
	if maxDevices < 1 {
		maxDevices = 1
	}
	return &Broker{maxDevices: maxDevices, subs: make(map[string][]*Subscription)}
}

// Subscribe registers a new connection for userID. When the user already has
// the maximum number of connections the oldest one is evicted.
func (b *Broker) Subscribe(userID string) *Subscription {
	c := make(chan struct{}, 1)
	sub := &Subscription{C: c, c: c, userID: userID}

	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[userID]
	for len(list) >= b.maxDevices {
		list[0].close()
		list = list[1:]
	}
	b.subs[userID] = append(list, sub)
	return sub
}

// Unsubscribe removes sub. It is safe to call more than once and after
// eviction.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.userID]
	for i, s := range list {
		if s == sub {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(b.subs, sub.userID)
	} else {
		b.subs[sub.userID] = list
	}
	sub.close()
}

// Notify wakes every connection of userID. It never blocks: a connection
// with a pending wake-up is skipped.
func (b *Broker) Notify(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs[userID] {
		select {
		case s.c <- struct{}{}:
		default:
		}
	}
}

// Count reports the number of live connections of userID.
func (b *Broker) Count(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[userID])
}

// close must be called with the broker lock held.
func (s *Subscription) close() {
	if !s.closed {
		s.closed = true
		close(s.c)
	}
}
