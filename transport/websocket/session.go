package websocket

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pairplay/roomrelay/internal/broker"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// session bridges one WebSocket connection to its room: a write pump
// draining the member's outbound channel and a read pump relaying incoming
// text frames to the whole room. The session ends the instant either pump
// ends; teardown runs exactly once regardless of which finished first.
type session struct {
	logger   *slog.Logger
	registry *broker.Registry
	conn     *websocket.Conn
	roomID   string
	member   *broker.Member

	teardownOnce sync.Once
}

func newSession(logger *slog.Logger, registry *broker.Registry, conn *websocket.Conn, roomID string, member *broker.Member) *session {
	return &session{
		logger:   logger.With("component", "session", "roomID", roomID, "connectionID", member.ID),
		registry: registry,
		conn:     conn,
		roomID:   roomID,
		member:   member,
	}
}

// readPump - reads frames in arrival order and relays each text frame
// verbatim to every member of the room, the sender included. The server
// never inspects the payload. A read error or a non-text frame ends the
// session.
func (that *session) readPump() {
	defer that.teardown()

	that.conn.SetReadLimit(maxMessageSize)
	_ = that.conn.SetReadDeadline(time.Now().Add(pongWait))
	that.conn.SetPongHandler(func(string) error {
		return that.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, payload, err := that.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				that.logger.Error("unexpected close", "error", err)
			}

			return
		}

		if messageType != websocket.TextMessage {
			that.logger.Debug("dropping connection on non-text frame", "messageType", messageType)
			return
		}

		that.registry.Broadcast(that.roomID, string(payload))
	}
}

// writePump - drains the member's outbound channel to the connection in
// enqueue order. Ends on the first write failure or once the session is
// torn down.
func (that *session) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		that.teardown()
	}()

	for {
		select {
		case <-that.member.Done():
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = that.conn.WriteMessage(websocket.CloseMessage, []byte{})

			return
		case payload := <-that.member.Outbound():
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
				return
			}
		case <-ticker.C:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// teardown - removes the connection from the registry, announces the leave
// to the remaining members and closes the transport. The removal and the
// announced count come from one lock hold, so near-simultaneous
// disconnects never announce a stale count. Runs once; the losing pump's
// call is a no-op.
func (that *session) teardown() {
	that.teardownOnce.Do(func() {
		remaining, size := that.registry.Release(that.roomID, that.member.ID)

		message := fmt.Sprintf("player %s left the room", that.member.Mark)
		that.registry.Deliver(that.roomID, remaining, func(m *broker.Member) string {
			return encodeRoomState(that.roomID, size, message, true, m.Mark)
		})

		that.member.Close()
		_ = that.conn.Close()

		that.logger.Info("connection left room", "mark", that.member.Mark.String())
	})
}
