//go:build tools
// +build tools

// Package tools pins the code generators used by go:generate (mockgen)
// so go.mod and go.sum track them.
package groupchat

import (
	_ "go.uber.org/mock/mockgen"
)
