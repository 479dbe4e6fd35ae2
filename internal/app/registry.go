// Package app owns room existence: creation on first join, removal on
// last leave.
package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/unhidra/gateway/internal/core"
	"github.com/unhidra/gateway/internal/domain"
)

// Registry maps room ids to live broadcast rooms. It is constructed once
// at startup and injected into the gateway endpoint; it is not a
// process-wide singleton.
//
// The map is a sync.Map rather than a mutex-guarded map: joins and
// leaves on unrelated rooms never contend.
type Registry struct {
	rooms    sync.Map // domain.RoomID -> *core.Room
	capacity int
}

func NewRegistry(capacity int) *Registry {
	return &Registry{capacity: capacity}
}

// GetOrCreate returns the live room for id, creating it when absent. It
// is atomic with respect to concurrent first-joins: all callers for the
// same id observe the same room. A room caught mid-close by a departing
// last member is never handed out; the caller transparently retries
// against a fresh entry.
func (reg *Registry) GetOrCreate(id domain.RoomID) *core.Room {
	for {
		if v, ok := reg.rooms.Load(id); ok {
			room := v.(*core.Room)
			if room.Join() {
				return room
			}
			// Lost the race against the closing last member; drop the
			// dead entry if it is still ours and try again.
			reg.rooms.CompareAndDelete(id, v)
			continue
		}

		fresh := core.NewRoom(id, reg.capacity)
		fresh.Join() // count the creator before the room becomes visible
		v, loaded := reg.rooms.LoadOrStore(id, fresh)
		if !loaded {
			log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("room created")
			return fresh
		}
		room := v.(*core.Room)
		if room.Join() {
			return room
		}
		reg.rooms.CompareAndDelete(id, v)
	}
}

// Release drops one subscription from the room. When the last member
// leaves, the room closes and its registry entry is removed — but only
// if the entry still points at this very room, so a replacement created
// by a concurrent joiner is left untouched.
func (reg *Registry) Release(room *core.Room) {
	if room.Leave() {
		reg.rooms.CompareAndDelete(room.ID(), room)
		log.Info().Str("module", "app.registry").Str("room", string(room.ID())).Msg("room removed, no remaining subscribers")
	}
}

// Subscribers reports the member count of a room, 0 when absent.
func (reg *Registry) Subscribers(id domain.RoomID) int {
	if v, ok := reg.rooms.Load(id); ok {
		return v.(*core.Room).Subscribers()
	}
	return 0
}

// RoomInfo is the observability snapshot of one room.
type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	Subscribers int           `json:"subscribers"`
}

// Snapshot lists all live rooms with their member counts.
func (reg *Registry) Snapshot() []RoomInfo {
	out := make([]RoomInfo, 0)
	reg.rooms.Range(func(k, v any) bool {
		room := v.(*core.Room)
		if n := room.Subscribers(); n > 0 {
			out = append(out, RoomInfo{ID: k.(domain.RoomID), Subscribers: n})
		}
		return true
	})
	return out
}
