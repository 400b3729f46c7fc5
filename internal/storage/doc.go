// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists chat sessions as JSON files, one file per session,
// under the chat directory (default ~/.deepterm/chats/).
//
// Writes go through an atomic temp-file-and-rename so a crash mid-save leaves
// either the previous file or the complete new one. Reads are forgiving:
// corrupt files are skipped during listing and reported as not-found when
// loaded directly, so a single damaged file never blocks the application.
//
// The package also exposes a filesystem watcher built on fsnotify that
// coalesces directory changes into debounced refresh notifications for the UI.
package storage
