// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "testing"

func TestNewTheme(t *testing.T) {
	theme := NewTheme()
	if theme == nil {
		t.Fatal("NewTheme returned nil")
	}

	// Every style should render without panicking.
	out := theme.Header.Render("deepterm")
	if out == "" {
		t.Error("Header style produced empty output")
	}
	if theme.ErrorText.Render("boom") == "" {
		t.Error("ErrorText style produced empty output")
	}
}

func TestRoleLabel(t *testing.T) {
	theme := NewTheme()
	if theme.RoleLabel("user").Render("x") != theme.UserLabel.Render("x") {
		t.Error("user role should use UserLabel")
	}
	if theme.RoleLabel("assistant").Render("x") != theme.AssistantLabel.Render("x") {
		t.Error("assistant role should use AssistantLabel")
	}
	if theme.RoleLabel("tool").Render("x") != theme.SystemLabel.Render("x") {
		t.Error("unknown roles should fall back to SystemLabel")
	}
}
