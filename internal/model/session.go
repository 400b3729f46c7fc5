// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session holds one complete chat session. It maps one-to-one onto a JSON
// file on disk; the field names are part of the persisted format.
type Session struct {
	ID           string    `json:"id"`
	Messages     []Message `json:"messages"`
	Created      time.Time `json:"created"`
	LastModified time.Time `json:"last_modified"`
}

// NewSession creates an empty session with a freshly generated ID.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:           NewSessionID(now),
		Messages:     make([]Message, 0),
		Created:      now,
		LastModified: now,
	}
}

// NewSessionID builds a session ID from the given time plus a short random
// suffix. The timestamp prefix keeps IDs lexically sortable by creation time;
// the suffix prevents collisions when two sessions are created within the
// same second.
func NewSessionID(t time.Time) string {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		// crypto/rand is documented never to fail on supported platforms;
		// fall back to nanoseconds rather than panic.
		return t.Format("20060102_150405") + "_" + fmt.Sprintf("%08x", t.Nanosecond())
	}
	return t.Format("20060102_150405") + "_" + hex.EncodeToString(suffix)
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds a message to the session and bumps LastModified.
func (s *Session) Append(msg Message) {
	s.Messages = append(s.Messages, msg)
	s.LastModified = time.Now()
}

// LastMessage returns the most recent message, or the zero Message and false
// when the session is empty.
func (s *Session) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// FirstUserMessage returns the content of the earliest user message, or ""
// when the session has none.
func (s *Session) FirstUserMessage() string {
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			return m.Content
		}
	}
	return ""
}

// Validate reports whether the session is structurally sound after being
// decoded from disk. A session is never saved before its first message, so a
// record with no ID, no messages, or a malformed message is treated as
// corrupt by callers.
func (s *Session) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("session has empty id")
	}
	if len(s.Messages) == 0 {
		return fmt.Errorf("session has no messages")
	}
	for i, m := range s.Messages {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d has unknown role %q", i, m.Role)
		}
	}
	return nil
}

// Markdown renders the session as a markdown transcript, used by export.
func (s *Session) Markdown() string {
	var sb strings.Builder
	sb.WriteString("# Chat session " + s.ID + "\n\n")
	sb.WriteString("Created: " + s.Created.Format("2006-01-02 15:04") + "\n\n")
	for _, m := range s.Messages {
		sb.WriteString("## " + m.Role.DisplayName())
		sb.WriteString(" (" + m.Timestamp.Format("2006-01-02 15:04") + ")\n\n")
		sb.WriteString(m.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
