// Package event defines the outbound envelopes the server pushes to connections.
package event

import (
	"encoding/json"
	"fmt"

	"groupchat/domain"
)

const (
	ActionMessage      = "message"
	ActionJoin         = "join"
	ActionLeft         = "left"
	ActionDeleted      = "del"
	ActionUpdated      = "update"
	ActionAlert        = "alert"
	ActionParticipants = "participants"
)

const (
	AlertNameTaken          = "Username is already in use. Please choose a different username."
	AlertNameEmpty          = "Username must not be empty."
	AlertAlreadyRegistered  = "You have already chosen a username."
	AlertDeleteUnauthorized = "Only the author of this message is authorized to Delete."
	AlertUpdateUnauthorized = "Only the author of this message is authorized to make updates."
)

// Event is the closed set of outbound envelopes.
type Event interface {
	Action() string
	envelope() any
}

// MessagePosted is used for both live broadcasts and history replay.
type MessagePosted struct {
	Message domain.Message
}

type ParticipantJoined struct {
	Username string
}

type ParticipantLeft struct {
	Username string
}

type MessageDeleted struct {
	ID domain.MessageID
	By string
}

type MessageUpdated struct {
	ID      domain.MessageID
	Content string
	Author  string
}

// Alert is only ever whispered to the requester.
type Alert struct {
	Text string
}

type ParticipantList struct {
	Names []string
}

func (MessagePosted) Action() string     { return ActionMessage }
func (ParticipantJoined) Action() string { return ActionJoin }
func (ParticipantLeft) Action() string   { return ActionLeft }
func (MessageDeleted) Action() string    { return ActionDeleted }
func (MessageUpdated) Action() string    { return ActionUpdated }
func (Alert) Action() string             { return ActionAlert }
func (ParticipantList) Action() string   { return ActionParticipants }

type messageEnvelope struct {
	Action    string `json:"action"`
	ID        int64  `json:"ID"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	Username  string `json:"username"`
}

type noticeEnvelope struct {
	Action   string `json:"action"`
	Message  string `json:"message"`
	Username string `json:"username"`
	ID       int64  `json:"id"`
}

type alertEnvelope struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

type participantsEnvelope struct {
	Action       string   `json:"action"`
	Participants []string `json:"participants"`
}

func (e MessagePosted) envelope() any {
	return messageEnvelope{
		Action:    ActionMessage,
		ID:        int64(e.Message.ID),
		Message:   e.Message.Content,
		Timestamp: e.Message.Timestamp(),
		Username:  e.Message.Author,
	}
}

func (e ParticipantJoined) envelope() any {
	return noticeEnvelope{
		Action:   ActionJoin,
		Message:  fmt.Sprintf("%s joined the group chat", e.Username),
		Username: e.Username,
	}
}

func (e ParticipantLeft) envelope() any {
	return noticeEnvelope{
		Action:   ActionLeft,
		Message:  fmt.Sprintf("%s left the group chat", e.Username),
		Username: e.Username,
	}
}

func (e MessageDeleted) envelope() any {
	return noticeEnvelope{
		Action:   ActionDeleted,
		Message:  fmt.Sprintf("%s Deleted a Message", e.By),
		Username: e.By,
		ID:       int64(e.ID),
	}
}

func (e MessageUpdated) envelope() any {
	return noticeEnvelope{
		Action:   ActionUpdated,
		Message:  e.Content,
		Username: e.Author,
		ID:       int64(e.ID),
	}
}

func (e Alert) envelope() any {
	return alertEnvelope{Action: ActionAlert, Message: e.Text}
}

func (e ParticipantList) envelope() any {
	names := e.Names
	if names == nil {
		names = []string{}
	}
	return participantsEnvelope{Action: ActionParticipants, Participants: names}
}

// Encode serializes an event into its JSON wire envelope.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e.envelope())
}
