// Package domain contains core concepts of the chat system.
// This file defines Message values and their identifiers.
package domain

import (
	"strconv"
	"time"
)

// MessageID is allocated by the message store, starts at 1 and is never reused.
type MessageID int64

func (id MessageID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Message represents one posted chat line.
// Author is a participant name, not a live connection: authorship
// survives the author's disconnection.
type Message struct {
	ID        MessageID
	Content   string
	Author    string
	CreatedAt time.Time
}

// Timestamp returns the creation time in milliseconds since epoch.
func (m Message) Timestamp() int64 {
	return m.CreatedAt.UnixMilli()
}

// IsAuthoredBy reports whether name is the author recorded at creation time.
func (m Message) IsAuthoredBy(name string) bool {
	return m.Author == name
}
