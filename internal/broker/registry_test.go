package broker

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairplay/roomrelay/internal/entity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_Reserve(t *testing.T) {
	registry := NewRegistry(testLogger())

	// Given: a fresh room
	// When: the first connection joins
	first, size, err := registry.Reserve("r1")

	// Then: it plays "x" and the room holds one connection
	require.NoError(t, err)
	require.Equal(t, entity.MarkX, first.Mark)
	require.Equal(t, 1, size)

	// When: the second connection joins
	second, size, err := registry.Reserve("r1")

	// Then: it plays "o" and the room is full
	require.NoError(t, err)
	require.Equal(t, entity.MarkO, second.Mark)
	require.Equal(t, 2, size)
	require.NotEqual(t, first.ID, second.ID)

	// When: a third connection tries to join
	third, size, err := registry.Reserve("r1")

	// Then: it is rejected and the room is untouched
	require.ErrorIs(t, err, ErrRoomFull)
	assert.Nil(t, third)
	assert.Equal(t, 2, size)
	assert.Len(t, registry.Snapshot("r1"), 2)
}

func TestRegistry_Reserve_SeparateRooms(t *testing.T) {
	registry := NewRegistry(testLogger())

	// Given: a full room
	_, _, err := registry.Reserve("r1")
	require.NoError(t, err)
	_, _, err = registry.Reserve("r1")
	require.NoError(t, err)

	// When: a connection joins a different room
	member, size, err := registry.Reserve("r2")

	// Then: it is admitted as that room's first player
	require.NoError(t, err)
	assert.Equal(t, entity.MarkX, member.Mark)
	assert.Equal(t, 1, size)
}

func TestRegistry_Reserve_ConcurrentJoiners(t *testing.T) {
	registry := NewRegistry(testLogger())

	const joiners = 32

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted []*Member
		rejected int
	)

	// When: many connections race to join the same room
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			member, _, err := registry.Reserve("r1")
			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				rejected++
				return
			}
			admitted = append(admitted, member)
		}()
	}
	wg.Wait()

	// Then: exactly two are admitted, with distinct marks, and the rest rejected
	require.Len(t, admitted, 2)
	assert.Equal(t, joiners-2, rejected)
	assert.NotEqual(t, admitted[0].Mark, admitted[1].Mark)
	assert.Len(t, registry.Snapshot("r1"), 2)
}

func TestRegistry_Release(t *testing.T) {
	t.Run("Release_AnnouncesPostRemovalCount", func(t *testing.T) {
		registry := NewRegistry(testLogger())

		first, _, err := registry.Reserve("r1")
		require.NoError(t, err)
		second, _, err := registry.Reserve("r1")
		require.NoError(t, err)

		// When: the first connection leaves
		remaining, size := registry.Release("r1", first.ID)

		// Then: the snapshot and count reflect the room after the removal
		require.Len(t, remaining, 1)
		assert.Equal(t, second.ID, remaining[0].ID)
		assert.Equal(t, 1, size)
	})

	t.Run("Release_LastConnectionDeletesRoom", func(t *testing.T) {
		registry := NewRegistry(testLogger())

		member, _, err := registry.Reserve("r1")
		require.NoError(t, err)

		// When: the only connection leaves
		remaining, size := registry.Release("r1", member.ID)

		// Then: the room is gone, not left empty
		assert.Empty(t, remaining)
		assert.Zero(t, size)
		assert.NotContains(t, registry.rooms, "r1")

		// And: a fresh join to the same id starts over as "x"
		again, size, err := registry.Reserve("r1")
		require.NoError(t, err)
		assert.Equal(t, entity.MarkX, again.Mark)
		assert.Equal(t, 1, size)
	})

	t.Run("Release_IsIdempotent", func(t *testing.T) {
		registry := NewRegistry(testLogger())

		member, _, err := registry.Reserve("r1")
		require.NoError(t, err)

		registry.Release("r1", member.ID)

		// When: the same connection and a never-joined room are released again
		remaining, size := registry.Release("r1", member.ID)
		assert.Empty(t, remaining)
		assert.Zero(t, size)

		remaining, size = registry.Release("no-such-room", member.ID)
		assert.Empty(t, remaining)
		assert.Zero(t, size)
	})
}

func TestRegistry_Snapshot(t *testing.T) {
	registry := NewRegistry(testLogger())

	// Given: no such room
	// Then: the snapshot is empty
	assert.Empty(t, registry.Snapshot("r1"))

	first, _, err := registry.Reserve("r1")
	require.NoError(t, err)
	second, _, err := registry.Reserve("r1")
	require.NoError(t, err)

	// When: the room is snapshotted
	members := registry.Snapshot("r1")

	// Then: members come back in join order
	require.Len(t, members, 2)
	assert.Equal(t, first.ID, members[0].ID)
	assert.Equal(t, second.ID, members[1].ID)
}
