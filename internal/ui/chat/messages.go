// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the full-screen chat view for the TUI.
//
// This file defines the Bubble Tea message types. Orchestrator callbacks run
// on background goroutines, so main.go forwards them into the program as
// these messages; everything the view reacts to arrives through Update.
package chat

import (
	"github.com/awalker/deepterm/internal/index"
	"github.com/awalker/deepterm/internal/model"
)

// MessageAppendedMsg reports a message durably appended to a session, both
// the user's own and the assistant's reply.
type MessageAppendedMsg struct {
	SessionID string
	Message   model.Message
}

// BusyMsg reports the orchestrator starting (true) or settling (false) a
// remote request.
type BusyMsg struct {
	Busy bool
}

// ErrorMsg reports a failed submit.
type ErrorMsg struct {
	Err error
}

// SessionListChangedMsg signals that the stored sessions changed and the
// sidebar should reload. Sent for orchestrator mutations and for external
// changes seen by the directory watcher.
type SessionListChangedMsg struct{}

// sessionListMsg delivers a reloaded chat index to the sidebar.
type sessionListMsg struct {
	entries []index.Entry
	err     error
}
