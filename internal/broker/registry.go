package broker

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/pairplay/roomrelay/internal/entity"
)

var ErrRoomFull = errors.New("room is full")

// Registry owns every room in the process. All mutation happens under one
// mutex; the critical sections are O(1) and never cross channel or network
// operations.
type Registry struct {
	logger *slog.Logger

	mu     sync.Mutex
	rooms  map[string]*room
	nextID ConnectionID
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logger.With("component", "broker"),
		rooms:  make(map[string]*room),
	}
}

// Reserve - admits a new connection into the room, creating the room if it
// does not exist yet. The capacity check, connection id allocation, mark
// assignment and insert all happen under a single lock hold, so two
// concurrent joiners can never both be admitted into the last free slot.
// Returns the new member and the room size after the join. On a full room
// it returns ErrRoomFull together with the current size.
func (that *Registry) Reserve(roomID string) (*Member, int, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	rm, ok := that.rooms[roomID]
	if !ok {
		rm = newRoom()
	}

	if len(rm.members) >= RoomCapacity {
		return nil, len(rm.members), ErrRoomFull
	}

	id := that.nextID
	that.nextID++ // wraps; fine for process-lifetime cardinality

	mark := entity.MarkX
	if len(rm.members) > 0 {
		mark = entity.MarkO
	}

	member := newMember(id, mark)
	rm.members[id] = member
	that.rooms[roomID] = rm

	return member, len(rm.members), nil
}

// Release - removes the connection from the room and deletes the room if it
// is now empty. Idempotent: releasing an absent connection or room is a
// no-op. Returns a snapshot of the remaining members and their count, taken
// under the same lock hold that performed the removal, so the count is
// always the post-removal truth even when both members leave at once.
func (that *Registry) Release(roomID string, id ConnectionID) ([]*Member, int) {
	that.mu.Lock()
	defer that.mu.Unlock()

	rm, ok := that.rooms[roomID]
	if !ok {
		return nil, 0
	}

	delete(rm.members, id)

	if len(rm.members) == 0 {
		delete(that.rooms, roomID)
		that.logger.Debug("room deleted", "roomID", roomID)
		return nil, 0
	}

	return rm.snapshot(), len(rm.members)
}

// Snapshot - copies the room's current membership under the lock, for
// callers that must send outside of it. An absent room yields nil.
func (that *Registry) Snapshot(roomID string) []*Member {
	that.mu.Lock()
	defer that.mu.Unlock()

	rm, ok := that.rooms[roomID]
	if !ok {
		return nil
	}

	return rm.snapshot()
}

// reap - removes the given dead connections in one lock hold and deletes
// the room once it is empty. Removing or deleting twice is a no-op.
func (that *Registry) reap(roomID string, dead []ConnectionID) {
	if len(dead) == 0 {
		return
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	rm, ok := that.rooms[roomID]
	if !ok {
		return
	}

	for _, id := range dead {
		delete(rm.members, id)
	}

	if len(rm.members) == 0 {
		delete(that.rooms, roomID)
		that.logger.Debug("room deleted", "roomID", roomID)
	}
}
