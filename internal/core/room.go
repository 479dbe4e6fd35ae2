// Package core implements the room broadcast channel: a bounded,
// multi-producer fan-out queue shared by every session in a room.
package core

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/unhidra/gateway/internal/domain"
)

// DefaultCapacity bounds each subscriber queue. A subscriber that falls
// behind loses its oldest pending messages once the bound is exceeded.
const DefaultCapacity = 100

// Room is a threadsafe in-memory broadcast domain. The registry owns
// room existence; sessions only hold handles, which stay usable even
// after the registry entry is gone.
type Room struct {
	id       domain.RoomID
	capacity int

	mu   sync.Mutex
	subs map[*Subscription]struct{}

	// refs counts attached sessions; -1 marks the room closed for good.
	refs atomic.Int64
}

func NewRoom(id domain.RoomID, capacity int) *Room {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Room{
		id:       id,
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

// Subscribers returns the number of currently attached sessions.
func (r *Room) Subscribers() int {
	n := r.refs.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Join attaches one session. It fails once the room has been closed, so
// a departing last member can never resurrect an entry the registry is
// about to drop.
func (r *Room) Join() bool {
	for {
		n := r.refs.Load()
		if n < 0 {
			return false
		}
		if r.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Leave detaches one session. Returns true when this call took the room
// to zero members; the room is then closed atomically and can never be
// joined again.
func (r *Room) Leave() bool {
	for {
		n := r.refs.Load()
		if n <= 0 {
			return false
		}
		next := n - 1
		if n == 1 {
			next = -1
		}
		if r.refs.CompareAndSwap(n, next) {
			return n == 1
		}
	}
}

// Subscribe registers a receive queue for one session.
func (r *Room) Subscribe() *Subscription {
	s := &Subscription{
		room:  r,
		queue: make(chan string, r.capacity),
	}
	r.mu.Lock()
	r.subs[s] = struct{}{}
	r.mu.Unlock()
	return s
}

// Publish fans a message out to every current subscriber, sender
// included. It never blocks and never fails: a room with no subscribers
// is the idle steady state, and a full subscriber queue drops its oldest
// pending message instead of stalling the publisher.
func (r *Room) Publish(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for s := range r.subs {
		s.push(msg)
	}
}

// Subscription is one session's view of the room stream.
type Subscription struct {
	room    *Room
	queue   chan string
	dropped atomic.Int64
}

// C is the receive stream. It is never closed; consumers stop reading
// when their session ends.
func (s *Subscription) C() <-chan string { return s.queue }

// Dropped reports how many messages this subscriber lost to capacity
// pressure.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Unsubscribe detaches the queue from the room. Safe to call more than
// once.
func (s *Subscription) Unsubscribe() {
	s.room.mu.Lock()
	delete(s.room.subs, s)
	s.room.mu.Unlock()
	if n := s.dropped.Load(); n > 0 {
		log.Debug().Str("module", "core.room").Str("room", string(s.room.id)).Int64("dropped", n).Msg("lagging subscriber detached")
	}
}

// push enqueues without blocking, evicting the oldest pending message
// while the queue is full. Runs under the room lock, so per-room publish
// order is preserved for every subscriber.
func (s *Subscription) push(msg string) {
	for {
		select {
		case s.queue <- msg:
			return
		default:
		}
		select {
		case <-s.queue:
			s.dropped.Add(1)
		default:
		}
	}
}
