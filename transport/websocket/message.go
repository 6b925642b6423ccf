package websocket

import (
	"encoding/json"

	"github.com/pairplay/roomrelay/internal/entity"
)

const responseTypeRoomState = "room_state"

const (
	messageJoined   = "Someone joined the room"
	messageRoomFull = "Room is full"
)

// Envelope is the only structured message this server emits. Client
// payloads are relayed verbatim, never wrapped in it.
type Envelope struct {
	ResponseType string    `json:"response_type"`
	Response     RoomState `json:"response"`
}

type RoomState struct {
	RoomID         string      `json:"room_id"`
	NumConnections int         `json:"num_connections"`
	Message        string      `json:"message"`
	Success        bool        `json:"success"`
	MyMark         entity.Mark `json:"my_mark"`
}

// encodeRoomState - serializes one room_state envelope. A marshal failure
// degrades this one payload to an empty object instead of aborting the
// broadcast it belongs to.
func encodeRoomState(roomID string, numConnections int, message string, success bool, mark entity.Mark) string {
	envelope := Envelope{
		ResponseType: responseTypeRoomState,
		Response: RoomState{
			RoomID:         roomID,
			NumConnections: numConnections,
			Message:        message,
			Success:        success,
			MyMark:         mark,
		},
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return "{}"
	}

	return string(raw)
}
