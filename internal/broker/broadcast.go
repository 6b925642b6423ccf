package broker

// Broadcast - sends the same payload to every member of the room, except
// the excluded connections.
func (that *Registry) Broadcast(roomID, payload string, exclude ...ConnectionID) {
	that.BroadcastEach(roomID, func(*Member) string { return payload }, exclude...)
}

// BroadcastEach - sends a per-recipient payload to every member of the
// room, except the excluded connections. The membership is snapshotted
// under the lock and the sends happen outside of it.
func (that *Registry) BroadcastEach(roomID string, payload func(*Member) string, exclude ...ConnectionID) {
	members := that.Snapshot(roomID)

	if len(exclude) > 0 {
		kept := members[:0]
		for _, member := range members {
			if !containsID(exclude, member.ID) {
				kept = append(kept, member)
			}
		}
		members = kept
	}

	that.Deliver(roomID, members, payload)
}

// Deliver - enqueues a per-recipient payload on each member's outbound
// channel. A failed enqueue means that member's session is already gone; it
// never aborts delivery to the rest. All dead members discovered this way
// are reaped in a single lock hold afterwards.
func (that *Registry) Deliver(roomID string, members []*Member, payload func(*Member) string) {
	var dead []ConnectionID

	for _, member := range members {
		if !member.enqueue(payload(member)) {
			dead = append(dead, member.ID)
		}
	}

	if len(dead) > 0 {
		that.logger.Debug("reaping dead connections", "roomID", roomID, "count", len(dead))
	}

	that.reap(roomID, dead)
}

func containsID(ids []ConnectionID, id ConnectionID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}

	return false
}
