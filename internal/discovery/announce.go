package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

var errMissingInstanceID = errors.New("announcement has no instance id")

// announcement is the presence record broadcast to the multicast group.
type announcement struct {
	InstanceID string `json:"instance_id"`
	Name       string `json:"name"`
	Addr       string `json:"addr,omitempty"`
}

func decodeAnnouncement(data []byte) (announcement, error) {
	var record announcement
	if err := json.Unmarshal(data, &record); err != nil {
		return announcement{}, fmt.Errorf("failed to unmarshal announcement: %w", err)
	}

	if record.InstanceID == "" {
		return announcement{}, errMissingInstanceID
	}

	return record, nil
}

// announceLoop - broadcasts the presence record immediately and then on
// every tick until the context is canceled.
func (that *Multicast) announceLoop(ctx context.Context, sender *net.UDPConn, record announcement) {
	payload, err := json.Marshal(record)
	if err != nil {
		that.logger.Error("failed to marshal announcement", "error", err)
		return
	}

	ticker := time.NewTicker(that.interval)
	defer ticker.Stop()

	for {
		if _, err = sender.Write(payload); err != nil {
			if ctx.Err() != nil {
				return
			}

			that.logger.Debug("failed to send announcement", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// listenLoop - collects announcements from other instances until the
// context is canceled; Stop closes the socket to unblock the read.
func (that *Multicast) listenLoop(ctx context.Context, listener *net.UDPConn) {
	buf := make([]byte, maxDatagramSize)

	for {
		n, _, err := listener.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() == nil {
				that.logger.Error("failed to read announcement", "error", err)
			}

			return
		}

		that.observe(buf[:n], time.Now())
	}
}

// observe - records one announcement; the instance's own echoes are ignored.
func (that *Multicast) observe(data []byte, seenAt time.Time) {
	record, err := decodeAnnouncement(data)
	if err != nil {
		that.logger.Debug("ignoring malformed announcement", "error", err)
		return
	}

	if record.InstanceID == that.instanceID {
		return
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	that.peers[record.InstanceID] = Peer{
		InstanceID: record.InstanceID,
		Name:       record.Name,
		Addr:       record.Addr,
		LastSeen:   seenAt,
	}
}
