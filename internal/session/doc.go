// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session coordinates the active chat session between the UI, the
// session store, and the remote chat client.
//
// The Orchestrator owns exactly one active session at a time. Submitting a
// message persists it, then sends the full history to the remote client on a
// background goroutine; the UI hears about progress through Callbacks. Every
// submit, and every replacement of the active session (new, select, delete),
// advances a generation counter and cancels the in-flight request, so a
// superseded submit or a reply for a session the user already left is
// discarded rather than appended out of order.
//
// State transitions:
//
//	Idle -> AwaitingResponse               on Submit
//	AwaitingResponse -> AwaitingResponse   on a superseding Submit
//	AwaitingResponse -> Idle               on a successful reply
//	AwaitingResponse -> Error              on a failed request
//	Error -> Idle                          automatically, once OnError is delivered
package session
