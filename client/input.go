package main

import (
	"fmt"
	"strings"

	"groupchat/domain"
)

// outbound is what the client writes on the socket.
type outbound struct {
	Action         domain.Action `json:"action"`
	Username       string        `json:"username,omitempty"`
	Message        string        `json:"message,omitempty"`
	ID             string        `json:"id,omitempty"`
	UpdatedMessage string        `json:"updatedMessage,omitempty"`
}

const usage = "commands: <text> | /del <id> | /edit <id> <text> | /who | /quit"

// parseInput turns one line typed by the user into an envelope.
// quit is set for /quit; a nil envelope with no error means nothing to send.
func parseInput(line, username string) (env *outbound, quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return &outbound{Action: domain.ActionAddMessage, Username: username, Message: line}, false, nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return nil, true, nil
	case "/who":
		return &outbound{Action: domain.ActionListParticipants}, false, nil
	case "/del":
		if len(fields) != 2 {
			return nil, false, fmt.Errorf("usage: /del <id>")
		}
		return &outbound{Action: domain.ActionDeleteMessage, Username: username, ID: fields[1]}, false, nil
	case "/edit":
		if len(fields) < 3 {
			return nil, false, fmt.Errorf("usage: /edit <id> <text>")
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
		text := strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))
		return &outbound{
			Action:         domain.ActionUpdateMessage,
			Username:       username,
			ID:             fields[1],
			UpdatedMessage: text,
		}, false, nil
	default:
		return nil, false, fmt.Errorf("unknown command %s, %s", fields[0], usage)
	}
}
