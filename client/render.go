package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"groupchat/domain/event"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// inbound is the union of every envelope the server sends.
type inbound struct {
	Action       string   `json:"action"`
	ID           int64    `json:"ID"`
	NoticeID     int64    `json:"id"`
	Message      string   `json:"message"`
	Timestamp    int64    `json:"timestamp"`
	Username     string   `json:"username"`
	Participants []string `json:"participants"`
}

// render prints one server envelope. me is highlighted in message lines.
func render(w io.Writer, raw []byte, me string) error {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("unreadable envelope: %w", err)
	}

	switch in.Action {
	case event.ActionMessage:
		at := time.UnixMilli(in.Timestamp).Format(time.TimeOnly)
		author := color.Cyan.Sprint(in.Username)
		if in.Username == me {
			author = color.Green.Sprint(in.Username)
		}
		_, err := fmt.Fprintf(w, "%s %s %s: %s\n", color.Gray.Sprint(at), color.Gray.Sprintf("#%d", in.ID), author, in.Message)
		return err
	case event.ActionJoin, event.ActionLeft:
		_, err := fmt.Fprintln(w, color.Yellow.Sprint("* "+in.Message))
		return err
	case event.ActionDeleted:
		_, err := fmt.Fprintln(w, color.Yellow.Sprintf("* %s (#%d)", in.Message, in.NoticeID))
		return err
	case event.ActionUpdated:
		_, err := fmt.Fprintln(w, color.Yellow.Sprintf("* %s edited #%d: %s", in.Username, in.NoticeID, in.Message))
		return err
	case event.ActionAlert:
		_, err := fmt.Fprintln(w, color.Red.Sprint("! "+in.Message))
		return err
	case event.ActionParticipants:
		return renderParticipants(w, in.Participants, me)
	default:
		_, err := fmt.Fprintln(w, color.Gray.Sprint(string(raw)))
		return err
	}
}

func renderParticipants(w io.Writer, names []string, me string) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Participant"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for i, name := range names {
		if name == me {
			name += " (you)"
		}
		table.Append([]string{fmt.Sprint(i + 1), name})
	}
	table.Render()
	return nil
}
