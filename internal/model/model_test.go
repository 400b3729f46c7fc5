// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// SESSION ID TESTS
// =============================================================================

func TestNewSessionID_Format(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.Local)
	id := NewSessionID(ts)

	if !strings.HasPrefix(id, "20250314_092653_") {
		t.Errorf("ID should start with timestamp prefix, got %q", id)
	}
	parts := strings.Split(id, "_")
	if len(parts) != 3 {
		t.Fatalf("ID should have 3 parts, got %d in %q", len(parts), id)
	}
	if len(parts[2]) != 8 {
		t.Errorf("Random suffix should be 8 hex chars, got %q", parts[2])
	}
}

func TestNewSessionID_Unique(t *testing.T) {
	ts := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewSessionID(ts)
		if seen[id] {
			t.Fatalf("Duplicate ID generated: %q", id)
		}
		seen[id] = true
	}
}

func TestNewSessionID_SortsByCreationTime(t *testing.T) {
	early := NewSessionID(time.Date(2025, 1, 2, 10, 0, 0, 0, time.Local))
	late := NewSessionID(time.Date(2025, 1, 2, 10, 0, 1, 0, time.Local))
	if !(early < late) {
		t.Errorf("IDs should sort by creation time: %q vs %q", early, late)
	}
}

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestNewSession(t *testing.T) {
	s := NewSession()
	if s.ID == "" {
		t.Error("New session should have an ID")
	}
	if s.Messages == nil || len(s.Messages) != 0 {
		t.Error("New session should have an empty message slice")
	}
	if s.Created.IsZero() || s.LastModified.IsZero() {
		t.Error("New session should have timestamps set")
	}
}

func TestSession_Append(t *testing.T) {
	s := NewSession()
	before := s.LastModified

	time.Sleep(time.Millisecond)
	s.Append(NewUserMessage("hello"))
	s.Append(NewAssistantMessage("hi there"))

	if len(s.Messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(s.Messages))
	}
	if s.Messages[0].Role != RoleUser || s.Messages[1].Role != RoleAssistant {
		t.Error("Messages should preserve append order")
	}
	if !s.LastModified.After(before) {
		t.Error("Append should bump LastModified")
	}
}

func TestSession_FirstUserMessage(t *testing.T) {
	s := NewSession()
	if got := s.FirstUserMessage(); got != "" {
		t.Errorf("Empty session should have no first user message, got %q", got)
	}

	s.Append(NewSystemMessage("be helpful"))
	s.Append(NewUserMessage("first question"))
	s.Append(NewAssistantMessage("answer"))
	s.Append(NewUserMessage("second question"))

	if got := s.FirstUserMessage(); got != "first question" {
		t.Errorf("FirstUserMessage = %q, want %q", got, "first question")
	}
}

func TestSession_Validate(t *testing.T) {
	s := NewSession()
	s.Append(NewUserMessage("hi"))
	if err := s.Validate(); err != nil {
		t.Errorf("Valid session should pass validation: %v", err)
	}

	s.ID = "  "
	if err := s.Validate(); err == nil {
		t.Error("Session with blank ID should fail validation")
	}

	// A session is never persisted before its first message, so an empty
	// message list on disk means the record is corrupt.
	s = NewSession()
	if err := s.Validate(); err == nil {
		t.Error("Session with no messages should fail validation")
	}

	s = NewSession()
	s.Messages = append(s.Messages, Message{Role: "robot", Content: "beep"})
	if err := s.Validate(); err == nil {
		t.Error("Session with unknown role should fail validation")
	}
}

func TestSession_JSONShape(t *testing.T) {
	s := NewSession()
	s.Append(NewUserMessage("hello"))

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, field := range []string{"id", "messages", "created", "last_modified"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("Persisted session missing field %q", field)
		}
	}

	var msgs []map[string]json.RawMessage
	if err := json.Unmarshal(raw["messages"], &msgs); err != nil {
		t.Fatalf("Unmarshal messages failed: %v", err)
	}
	for _, field := range []string{"role", "content", "timestamp"} {
		if _, ok := msgs[0][field]; !ok {
			t.Errorf("Persisted message missing field %q", field)
		}
	}
}

func TestRole_DisplayName(t *testing.T) {
	if got := RoleUser.DisplayName(); got != "You" {
		t.Errorf("RoleUser.DisplayName() = %q", got)
	}
	if got := RoleAssistant.DisplayName(); got != "Assistant" {
		t.Errorf("RoleAssistant.DisplayName() = %q", got)
	}
	if got := Role("weird").DisplayName(); got != "weird" {
		t.Errorf("Unknown role should display as itself, got %q", got)
	}
}

func TestSession_Markdown(t *testing.T) {
	s := NewSession()
	s.Append(NewUserMessage("what is Go?"))
	s.Append(NewAssistantMessage("A programming language."))

	md := s.Markdown()
	if !strings.Contains(md, "# Chat session "+s.ID) {
		t.Error("Markdown should contain session header")
	}
	if !strings.Contains(md, "## You") || !strings.Contains(md, "## Assistant") {
		t.Error("Markdown should contain role headings")
	}
	if !strings.Contains(md, "what is Go?") {
		t.Error("Markdown should contain message content")
	}
}
