package main

import (
	"testing"

	"groupchat/domain"

	"github.com/stretchr/testify/require"
)

func TestParseInput(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected *outbound
		quit     bool
		err      bool
	}{
		{name: "Blank line", line: "   "},
		{name: "Plain text", line: " hello there ", expected: &outbound{Action: domain.ActionAddMessage, Username: "alice", Message: "hello there"}},
		{name: "Delete", line: "/del 12", expected: &outbound{Action: domain.ActionDeleteMessage, Username: "alice", ID: "12"}},
		{name: "Delete without id", line: "/del", err: true},
		{name: "Edit keeps inner spacing", line: "/edit 3 new  text here", expected: &outbound{Action: domain.ActionUpdateMessage, Username: "alice", ID: "3", UpdatedMessage: "new  text here"}},
		{name: "Edit without text", line: "/edit 3", err: true},
		{name: "Who", line: "/who", expected: &outbound{Action: domain.ActionListParticipants}},
		{name: "Quit", line: "/quit", quit: true},
		{name: "Unknown command", line: "/dance", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			envelope, quit, err := parseInput(tt.line, "alice")
			if tt.err {
				req.Error(err)
				return
			}
			req.NoError(err)
			req.Equal(tt.quit, quit)
			req.Equal(tt.expected, envelope)
		})
	}
}
