package relay

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/johndosdos/skillxchange/internal/model"
)

// Client to server events.
const (
	EventJoin        = "join"
	EventSendMessage = "sendMessage"
	EventTyping      = "typing"
	EventStopTyping  = "stopTyping"
)

// Server to client events.
const (
	EventNewMessage        = "newMessage"
	EventMessageConfirmed  = "messageConfirmed"
	EventMessageError      = "messageError"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventUserStatusChanged = "userStatusChanged"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Event is one frame on the wire.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// RawEvent is an Event whose payload has not been decoded yet.
type RawEvent struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// SendMessagePayload is what a client submits. ID is the client's temporary
// id for the optimistic entry.
type SendMessagePayload struct {
	ID        string     `json:"_id,omitempty"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type TypingPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Broadcast is the newMessage payload. Before persistence its ID is the
// temporary id.
type Broadcast struct {
	model.Message
	TempID string `json:"tempId,omitempty"`
}

type Confirmation struct {
	TempID           string        `json:"tempId"`
	ConfirmedMessage model.Message `json:"confirmedMessage"`
}

type ErrorPayload struct {
	Error  string `json:"error"`
	TempID string `json:"tempId,omitempty"`
}

type TypingNotice struct {
	From string `json:"from"`
}

type StatusPayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// parseJoin accepts both a bare user id and {"userId": "..."}.
func parseJoin(data json.RawMessage) string {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return strings.TrimSpace(id)
	}

	var obj struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return strings.TrimSpace(obj.UserID)
	}
	return ""
}
