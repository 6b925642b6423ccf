package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pairplay/roomrelay/internal/broker"
	"github.com/pairplay/roomrelay/internal/entity"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	logger   *slog.Logger
	registry *broker.Registry
	upgrader websocket.Upgrader
}

func New(logger *slog.Logger, registry *broker.Registry) *Server {
	return &Server{
		logger:   logger,
		registry: registry,

		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
	}
}

// Handler - the route table: one upgrade endpoint parameterized by room id.
func (that *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Get("/join/{room_id}", that.handleJoin)

	return router
}

// Start - starts the WebSocket server and shuts it down when the context is
// canceled. Connections are long-lived, so no read/write timeouts are set
// on the HTTP server itself.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     that.Handler(),
		IdleTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down websocket server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// handleJoin - upgrades the connection and runs the join protocol: reserve
// a slot in the room, announce the join to every member, then hand the
// connection over to its relay session. A full room gets one failure
// envelope and a close frame; no session is ever started for it.
func (that *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleJoin")

	roomID := chi.URLParam(r, "room_id")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	conn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	member, size, err := that.registry.Reserve(roomID)
	if errors.Is(err, broker.ErrRoomFull) {
		log.Info("join rejected, room is full", "roomID", roomID)
		that.reject(conn, roomID, size)

		return
	}

	log.Info("connection joined room", "roomID", roomID, "connectionID", member.ID, "mark", member.Mark.String())

	that.registry.BroadcastEach(roomID, func(m *broker.Member) string {
		return encodeRoomState(roomID, size, messageJoined, true, m.Mark)
	})

	session := newSession(that.logger, that.registry, conn, roomID, member)

	go session.writePump()
	session.readPump()
}

// reject - tells a surplus joiner the room is full and closes the
// connection. The placeholder mark is "o": a rejected joiner could never
// have been the room's first connection.
func (that *Server) reject(conn *websocket.Conn, roomID string, size int) {
	payload := encodeRoomState(roomID, size, messageRoomFull, false, entity.MarkO)

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.TextMessage, []byte(payload))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "room is full"))
	_ = conn.Close()
}
