// Package domain contains core concepts of the chat system.
// This file defines participant name rules.
// No runtime, network, or UI logic should be added here.
package domain

import "strings"

// NormalizeName strips surrounding whitespace from a chosen display name.
// Names are otherwise compared byte for byte.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}
