package broker

import (
	"sort"
	"sync"

	"github.com/pairplay/roomrelay/internal/entity"
)

// RoomCapacity - a room never holds more than two connections.
const RoomCapacity = 2

// outboundBuffer - capacity of a member's outbound channel. A member whose
// buffer is backed up is treated the same as one whose session is gone.
const outboundBuffer = 256

// ConnectionID is an opaque handle for one active connection, unique for
// the lifetime of the process.
type ConnectionID uint64

// Member is one connection's slot in a room: its id, its assigned mark and
// the channel its write pump drains.
type Member struct {
	ID   ConnectionID
	Mark entity.Mark

	out  chan string
	done chan struct{}

	closeOnce sync.Once
}

func newMember(id ConnectionID, mark entity.Mark) *Member {
	return &Member{
		ID:   id,
		Mark: mark,

		out:  make(chan string, outboundBuffer),
		done: make(chan struct{}),
	}
}

// Outbound - the channel the member's write pump drains, in enqueue order.
func (that *Member) Outbound() <-chan string {
	return that.out
}

// Done - closed once the member's session has torn down.
func (that *Member) Done() <-chan struct{} {
	return that.done
}

// Close - marks the member's session as torn down. Safe to call more than once.
func (that *Member) Close() {
	that.closeOnce.Do(func() {
		close(that.done)
	})
}

// enqueue - attempts to hand a payload to the member's write pump. Returns
// false when the session is already gone, or when the buffer is backed up:
// a live member that stopped draining is treated the same as a dead one and
// gets reaped. The done check comes first on its own, because in a combined
// select a ready buffer slot could win over the closed done channel.
func (that *Member) enqueue(payload string) bool {
	select {
	case <-that.done:
		return false
	default:
	}

	select {
	case that.out <- payload:
		return true
	default:
		return false
	}
}

type room struct {
	members map[ConnectionID]*Member
}

func newRoom() *room {
	return &room{
		members: make(map[ConnectionID]*Member, RoomCapacity),
	}
}

// snapshot - copies the current membership, ordered by connection id
// (which is join order).
func (that *room) snapshot() []*Member {
	members := make([]*Member, 0, len(that.members))
	for _, member := range that.members {
		members = append(members, member)
	}

	sort.Slice(members, func(i, j int) bool {
		return members[i].ID < members[j].ID
	})

	return members
}
