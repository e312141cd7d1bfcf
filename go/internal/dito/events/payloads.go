package events

import (
	"encoding/json"
	"time"
)

// Inbound event names delivered by the chat server.
const (
	RoomCreated = "new_task_room"
	JoinedRoom  = "joined_room"
	Status      = "status"
	TextMessage = "text_message"
	Command     = "command"
)

// Outbound event names emitted by the bot.
const (
	EmitReady        = "ready"
	EmitText         = "text"
	EmitSetAttribute = "set_attribute"
	EmitSetText      = "set_text"
	EmitJoinRoom     = "join_room"
	EmitLeaveRoom    = "leave_room"
	EmitLog          = "log"
)

// Status types carried by StatusPayload.
const (
	StatusJoin  = "join"
	StatusLeave = "leave"
)

// User identifies a chat participant.
type User struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// RoomCreatedPayload announces a task room formed from the waiting room.
type RoomCreatedPayload struct {
	Room  string `json:"room"`
	Task  int    `json:"task"`
	Users []User `json:"users"`
}

// JoinedRoomPayload confirms that the bot entered a room.
type JoinedRoomPayload struct {
	Room string `json:"room"`
	User int    `json:"user"`
}

// StatusPayload reports a participant joining or leaving a room.
type StatusPayload struct {
	Type      string `json:"type"`
	Room      string `json:"room"`
	User      User   `json:"user"`
	Timestamp string `json:"timestamp"`
}

// TextMessagePayload is a chat line written by a participant.
type TextMessagePayload struct {
	Msg       string `json:"msg"`
	Room      string `json:"room"`
	User      User   `json:"user"`
	Timestamp string `json:"timestamp,omitempty"`
}

// CommandPayload is a slash command; Command has the slash removed.
type CommandPayload struct {
	Command string `json:"command"`
	Room    string `json:"room"`
	User    User   `json:"user"`
}

// TextPayload sends a message to a room. A nil ReceiverID broadcasts.
type TextPayload struct {
	Msg        string `json:"msg"`
	Room       string `json:"room"`
	ReceiverID *int   `json:"receiver_id,omitempty"`
	HTML       bool   `json:"html,omitempty"`
}

// SetAttributePayload changes an attribute of a page element.
type SetAttributePayload struct {
	ID         string `json:"id"`
	Attribute  string `json:"attribute"`
	Value      string `json:"value"`
	Room       string `json:"room"`
	ReceiverID *int   `json:"receiver_id,omitempty"`
}

// SetTextPayload replaces the text of a page element.
type SetTextPayload struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Room       string `json:"room"`
	ReceiverID *int   `json:"receiver_id,omitempty"`
}

// RoomMovePayload asks the server to add a user to or remove a user from a room.
type RoomMovePayload struct {
	User int    `json:"user"`
	Room string `json:"room"`
}

// ConfirmationLogPayload records an issued confirmation code.
type ConfirmationLogPayload struct {
	Room      string `json:"room"`
	Type      string `json:"type"`
	AmtToken  string `json:"amt_token"`
	StatusTxt string `json:"status_txt"`
}

// Envelope wraps an event on the message bus.
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Room      string          `json:"room,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Receiver returns a receiver id suitable for the ReceiverID fields.
func Receiver(id int) *int {
	return &id
}
