// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
//
// A Session is the unit of persistence: one session maps onto one JSON file
// under the chat directory. Both Session and Message carry JSON tags that
// define that on-disk format, so changing a field name here is a breaking
// change for existing chat files.
package model
