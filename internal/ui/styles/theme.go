// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the deepterm TUI.
package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components for the application. It detects the
// terminal's background and color capability and adjusts accordingly.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	// Layout
	Header    lipgloss.Style
	StatusBar lipgloss.Style

	// Sidebar (chat list)
	Sidebar         lipgloss.Style
	SidebarTitle    lipgloss.Style
	SidebarItem     lipgloss.Style
	SidebarSelected lipgloss.Style

	// Transcript
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	Timestamp      lipgloss.Style
	ErrorText      lipgloss.Style

	// Input area
	InputPrompt lipgloss.Style
	HelpText    lipgloss.Style
}

// Accent colors, adaptive for light and dark terminals.
var (
	colorAccent  = lipgloss.AdaptiveColor{Light: "25", Dark: "39"}
	colorUser    = lipgloss.AdaptiveColor{Light: "28", Dark: "42"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "245", Dark: "241"}
	colorError   = lipgloss.AdaptiveColor{Light: "124", Dark: "203"}
	colorDivider = lipgloss.AdaptiveColor{Light: "250", Dark: "238"}
)

// NewTheme builds the theme for the current terminal.
func NewTheme() *Theme {
	return &Theme{
		IsDark:       termenv.HasDarkBackground(),
		ColorProfile: termenv.ColorProfile(),

		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			Padding(0, 1),
		StatusBar: lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 1),

		Sidebar: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(colorDivider).
			Padding(0, 1),
		SidebarTitle: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent),
		SidebarItem: lipgloss.NewStyle().
			Foreground(colorMuted),
		SidebarSelected: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent),

		UserLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorUser),
		AssistantLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent),
		SystemLabel: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorMuted),
		Timestamp: lipgloss.NewStyle().
			Foreground(colorMuted),
		ErrorText: lipgloss.NewStyle().
			Foreground(colorError),

		InputPrompt: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent),
		HelpText: lipgloss.NewStyle().
			Foreground(colorMuted),
	}
}

// RoleLabel returns the style for a message role label.
func (t *Theme) RoleLabel(role string) lipgloss.Style {
	switch role {
	case "user":
		return t.UserLabel
	case "assistant":
		return t.AssistantLabel
	default:
		return t.SystemLabel
	}
}
