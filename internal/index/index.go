// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package index derives display summaries from stored chat sessions.
package index

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/awalker/deepterm/internal/model"
	"github.com/awalker/deepterm/internal/util"
)

// TitleMaxRunes is the display budget for a chat title. Longer first messages
// are cut to 27 runes plus an ellipsis.
const TitleMaxRunes = 30

// PlaceholderTitle is shown for sessions with no user message yet.
const PlaceholderTitle = "New chat"

// timestampLayout is the display format for session timestamps.
const timestampLayout = "2006-01-02 15:04"

// =============================================================================
// ENTRY TYPE
// =============================================================================

// Entry is one row of the chat index: everything the UI needs to render a
// session in the sidebar or the /list output without touching disk again.
type Entry struct {
	ID           string
	Title        string
	Created      time.Time
	Modified     time.Time
	MessageCount int
}

// CreatedDisplay returns the creation time formatted for display.
func (e Entry) CreatedDisplay() string {
	return e.Created.Format(timestampLayout)
}

// ModifiedDisplay returns the last-modified time formatted for display.
func (e Entry) ModifiedDisplay() string {
	return e.Modified.Format(timestampLayout)
}

// =============================================================================
// INDEX CONSTRUCTION
// =============================================================================

// Build converts sessions into index entries sorted most-recently-modified
// first. Sessions modified at the same instant fall back to descending ID,
// which is descending creation time since IDs are timestamp-prefixed. Build
// is a pure function of its input.
func Build(sessions []*model.Session) []Entry {
	entries := make([]Entry, 0, len(sessions))
	for _, sess := range sessions {
		entries = append(entries, Entry{
			ID:           sess.ID,
			Title:        Title(sess),
			Created:      sess.Created,
			Modified:     sess.LastModified,
			MessageCount: len(sess.Messages),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Modified.Equal(entries[j].Modified) {
			return entries[i].Modified.After(entries[j].Modified)
		}
		return entries[i].ID > entries[j].ID
	})
	return entries
}

// Title derives the display title for a session from its first user message.
// Newlines collapse to spaces so multi-line prompts stay on one row.
func Title(sess *model.Session) string {
	first := sess.FirstUserMessage()
	first = strings.Join(strings.Fields(first), " ")
	if first == "" {
		return PlaceholderTitle
	}
	return util.TruncateRunes(first, TitleMaxRunes)
}

// =============================================================================
// LIST FORMATTING
// =============================================================================

// Format renders entries as an aligned table for the plain REPL's /list
// command. Column widths account for double-width CJK characters.
func Format(entries []Entry) string {
	if len(entries) == 0 {
		return "No saved chats."
	}

	var sb strings.Builder
	sb.WriteString(pad("#", 4))
	sb.WriteString(pad("TITLE", TitleMaxRunes+2))
	sb.WriteString(pad("MODIFIED", 18))
	sb.WriteString("MSGS\n")

	for i, e := range entries {
		sb.WriteString(pad(strconv.Itoa(i+1), 4))
		sb.WriteString(pad(util.TruncateWidth(e.Title, TitleMaxRunes), TitleMaxRunes+2))
		sb.WriteString(pad(e.ModifiedDisplay(), 18))
		sb.WriteString(strconv.Itoa(e.MessageCount))
		sb.WriteString("\n")
	}
	return sb.String()
}

func pad(s string, width int) string {
	w := util.StringWidth(s)
	if w >= width {
		return s + " "
	}
	return s + strings.Repeat(" ", width-w)
}
