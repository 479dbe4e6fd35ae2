package app

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unhidra/gateway/internal/domain"
)

func TestRegistry_SharedRoomForSameID(t *testing.T) {
	reg := NewRegistry(10)

	a := reg.GetOrCreate("room1")
	b := reg.GetOrCreate("room1")

	assert.Same(t, a, b)
	assert.Equal(t, 2, reg.Subscribers("room1"))
}

func TestRegistry_DistinctRooms(t *testing.T) {
	reg := NewRegistry(10)

	a := reg.GetOrCreate("room1")
	b := reg.GetOrCreate("room2")

	assert.NotSame(t, a, b)
	assert.Equal(t, 1, reg.Subscribers("room1"))
	assert.Equal(t, 1, reg.Subscribers("room2"))
}

func TestRegistry_RemovedWhenLastMemberLeaves(t *testing.T) {
	reg := NewRegistry(10)

	room := reg.GetOrCreate("room1")
	reg.GetOrCreate("room1")
	assert.Equal(t, 2, reg.Subscribers("room1"))

	reg.Release(room)
	assert.Equal(t, 1, reg.Subscribers("room1"))

	reg.Release(room)
	assert.Equal(t, 0, reg.Subscribers("room1"))
	assert.Empty(t, reg.Snapshot())
}

func TestRegistry_RejoinGetsFreshRoom(t *testing.T) {
	reg := NewRegistry(10)

	old := reg.GetOrCreate("room1")
	sub := old.Subscribe()
	old.Publish("stale")
	sub.Unsubscribe()
	reg.Release(old)

	fresh := reg.GetOrCreate("room1")
	require.NotSame(t, old, fresh)

	// Nothing published to the old incarnation leaks into the new one.
	freshSub := fresh.Subscribe()
	assert.Empty(t, freshSub.C())
}

func TestRegistry_SubscribersOfUnknownRoom(t *testing.T) {
	reg := NewRegistry(10)
	assert.Equal(t, 0, reg.Subscribers("nope"))
}

func TestRegistry_Snapshot(t *testing.T) {
	reg := NewRegistry(10)
	reg.GetOrCreate("a")
	reg.GetOrCreate("a")
	reg.GetOrCreate("b")

	snap := reg.Snapshot()
	require.Len(t, snap, 2)

	byID := make(map[domain.RoomID]int, len(snap))
	for _, info := range snap {
		byID[info.ID] = info.Subscribers
	}
	assert.Equal(t, 2, byID["a"])
	assert.Equal(t, 1, byID["b"])
}

// Concurrent join/leave churn on one room id must never hand out a
// closed room or corrupt the map, even when last-leave removal races
// with a fresh first-join.
func TestRegistry_JoinLeaveChurn(t *testing.T) {
	reg := NewRegistry(10)
	const workers = 8
	const rounds = 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				room := reg.GetOrCreate("churn")
				if room.Subscribers() < 1 {
					t.Error("joined a room with no subscribers")
				}
				reg.Release(room)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, reg.Subscribers("churn"))
	assert.Empty(t, reg.Snapshot())
}
