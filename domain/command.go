package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"groupchat/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Action is the inbound envelope tag.
type Action string

const (
	ActionChooseName       Action = "username"
	ActionAddMessage       Action = "add"
	ActionDeleteMessage    Action = "del"
	ActionUpdateMessage    Action = "update"
	ActionListParticipants Action = "getParticipants"
)

// Command is the closed set of inbound actions.
// Only types of this package implement it, so a type switch over the
// cases below is exhaustive.
type Command interface {
	Action() Action
	Validate() error
	command()
}

type ChooseName struct {
	Username string `validate:"required"`
}

type AddMessage struct {
	Content  string `validate:"required"`
	Username string
}

type DeleteMessage struct {
	ID       MessageID `validate:"gt=0"`
	Username string
}

type UpdateMessage struct {
	ID       MessageID `validate:"gt=0"`
	Content  string    `validate:"required"`
	Username string
}

type ListParticipants struct{}

// Unrecognized carries an action tag the server does not know.
type Unrecognized struct {
	Tag string
	Raw string
}

func (ChooseName) Action() Action       { return ActionChooseName }
func (AddMessage) Action() Action       { return ActionAddMessage }
func (DeleteMessage) Action() Action    { return ActionDeleteMessage }
func (UpdateMessage) Action() Action    { return ActionUpdateMessage }
func (ListParticipants) Action() Action { return ActionListParticipants }
func (u Unrecognized) Action() Action   { return Action(u.Tag) }

func (ChooseName) command()       {}
func (AddMessage) command()       {}
func (DeleteMessage) command()    {}
func (UpdateMessage) command()    {}
func (ListParticipants) command() {}
func (Unrecognized) command()     {}

func (c ChooseName) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrEmptyName, err)
	}
	return nil
}

func (c AddMessage) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrEmptyContent, err)
	}
	return nil
}

func (c DeleteMessage) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidID, err)
	}
	return nil
}

func (c UpdateMessage) Validate() error {
	if c.ID <= 0 {
		return fmt.Errorf("%w: %d", errors.ErrInvalidID, c.ID)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrEmptyContent, err)
	}
	return nil
}

func (ListParticipants) Validate() error { return nil }

func (u Unrecognized) Validate() error {
	return fmt.Errorf("%w: %q", errors.ErrUnknownAction, u.Tag)
}

// inbound mirrors every field any inbound envelope may carry.
type inbound struct {
	Action         string          `json:"action"`
	Username       string          `json:"username"`
	Message        string          `json:"message"`
	UpdatedMessage string          `json:"updatedMessage"`
	ID             json.RawMessage `json:"id"`
}

// DecodeCommand parses one raw envelope into its Command case.
// Structural problems (invalid JSON, non numeric id) are reported here;
// field level rules are checked by Command.Validate.
func DecodeCommand(raw []byte) (Command, error) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedEnvelope, err)
	}

	switch Action(in.Action) {
	case ActionChooseName:
		return ChooseName{Username: NormalizeName(in.Username)}, nil
	case ActionAddMessage:
		return AddMessage{Content: in.Message, Username: NormalizeName(in.Username)}, nil
	case ActionDeleteMessage:
		id, err := parseMessageID(in.ID)
		if err != nil {
			return nil, err
		}
		return DeleteMessage{ID: id, Username: NormalizeName(in.Username)}, nil
	case ActionUpdateMessage:
		id, err := parseMessageID(in.ID)
		if err != nil {
			return nil, err
		}
		return UpdateMessage{ID: id, Content: in.UpdatedMessage, Username: NormalizeName(in.Username)}, nil
	case ActionListParticipants:
		return ListParticipants{}, nil
	default:
		return Unrecognized{Tag: in.Action, Raw: string(raw)}, nil
	}
}

// parseMessageID accepts both "12" and 12.
func parseMessageID(raw json.RawMessage) (MessageID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("%w: missing", errors.ErrInvalidID)
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("%w: %v", errors.ErrInvalidID, err)
		}
	}

	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errors.ErrInvalidID, text)
	}
	return MessageID(id), nil
}
