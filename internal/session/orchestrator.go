// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/awalker/deepterm/internal/index"
	"github.com/awalker/deepterm/internal/model"
	"github.com/awalker/deepterm/internal/storage"
)

// ErrEmptyMessage is returned when a submitted message is empty after
// trimming whitespace.
var ErrEmptyMessage = errors.New("message is empty")

// =============================================================================
// STATE
// =============================================================================

// State is the orchestrator's lifecycle state for the active session.
type State int

const (
	// StateIdle means no remote request is in flight.
	StateIdle State = iota

	// StateAwaitingResponse means a user message was sent and the remote
	// reply is pending.
	StateAwaitingResponse

	// StateError means the last request failed. The state is transient: it
	// resets to StateIdle once OnError has been delivered, so the user can
	// immediately retry.
	StateError
)

// String returns the state's name for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// =============================================================================
// CALLBACKS
// =============================================================================

// Callbacks are the orchestrator's notifications to the UI. All callbacks are
// invoked outside the orchestrator's lock, so they may call back into the
// orchestrator freely. Nil fields are skipped. Callbacks run on the
// orchestrator's goroutines; UIs that need their own event loop should
// forward them as messages.
type Callbacks struct {
	// OnMessageAppended fires after a message is durably appended to a
	// session, for both the user's message and the assistant's reply.
	OnMessageAppended func(sessionID string, msg model.Message)

	// OnError fires when a submit fails, with the client or storage error.
	OnError func(err error)

	// OnBusyChanged fires when a request starts (true) and settles (false).
	OnBusyChanged func(busy bool)

	// OnSessionListChanged fires when the set of stored sessions, or their
	// ordering, may have changed.
	OnSessionListChanged func()
}

func (cb Callbacks) messageAppended(sessionID string, msg model.Message) {
	if cb.OnMessageAppended != nil {
		cb.OnMessageAppended(sessionID, msg)
	}
}

func (cb Callbacks) errorOccurred(err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

func (cb Callbacks) busyChanged(busy bool) {
	if cb.OnBusyChanged != nil {
		cb.OnBusyChanged(busy)
	}
}

func (cb Callbacks) sessionListChanged() {
	if cb.OnSessionListChanged != nil {
		cb.OnSessionListChanged()
	}
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// ChatClient is the remote side the orchestrator talks to. Implemented by
// deepseek.Client; tests substitute fakes.
type ChatClient interface {
	Send(ctx context.Context, messages []model.Message) (string, error)
}

// Orchestrator owns the active session and mediates between the UI, the
// store, and the remote client. All exported methods are safe for concurrent
// use.
//
// Every submit and every replacement of the active session advances a
// monotonically increasing generation number. A submit captures the number
// at send time; when the reply arrives it is applied only if the number
// still matches, so the reply of a superseded submit, or one for a session
// the user already replaced, is dropped instead of being appended.
type Orchestrator struct {
	mu sync.Mutex

	store  *storage.Store
	client ChatClient
	cb     Callbacks
	logger *log.Logger

	active     *model.Session
	state      State
	generation uint64

	cancelMgr *cancelManager
}

// New creates an orchestrator with a fresh empty active session.
func New(store *storage.Store, client ChatClient) *Orchestrator {
	return &Orchestrator{
		store:     store,
		client:    client,
		logger:    log.Default(),
		active:    store.Create(),
		state:     StateIdle,
		cancelMgr: newCancelManager(),
	}
}

// SetCallbacks installs the UI notification callbacks. Call before the first
// Submit; callbacks are not synchronized against in-flight requests.
func (o *Orchestrator) SetCallbacks(cb Callbacks) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cb = cb
}

// SetLogger replaces the orchestrator's logger.
func (o *Orchestrator) SetLogger(l *log.Logger) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if l != nil {
		o.logger = l
	}
}

// ActiveID returns the ID of the active session.
func (o *Orchestrator) ActiveID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active.ID
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Messages returns a copy of the active session's messages.
func (o *Orchestrator) Messages() []model.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	msgs := make([]model.Message, len(o.active.Messages))
	copy(msgs, o.active.Messages)
	return msgs
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit appends the user's message to the active session and sends the full
// history to the remote client in the background. The user's message is
// persisted before the request goes out, so it survives even if the request
// fails. A submit while a response is pending supersedes the earlier call:
// its request is cancelled and its reply, if one still arrives, is discarded.
// Returns ErrEmptyMessage for whitespace-only input with no state change.
func (o *Orchestrator) Submit(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyMessage
	}

	o.mu.Lock()
	userMsg := model.NewUserMessage(trimmed)
	before := len(o.active.Messages)
	if err := o.store.Append(o.active, userMsg); err != nil {
		// Roll back the in-memory append so memory stays consistent with disk.
		o.active.Messages = o.active.Messages[:before]
		o.mu.Unlock()
		return err
	}

	// Bumping the generation here is what supersedes an in-flight submit:
	// its complete sees a stale number and drops the reply.
	o.state = StateAwaitingResponse
	o.generation++
	gen := o.generation
	sessionID := o.active.ID
	history := make([]model.Message, len(o.active.Messages))
	copy(history, o.active.Messages)
	cb := o.cb
	o.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	o.cancelMgr.set(cancel)

	cb.messageAppended(sessionID, userMsg)
	cb.sessionListChanged()
	cb.busyChanged(true)

	o.logger.Debug("submitting message", "session", sessionID, "generation", gen, "history", len(history))

	go func() {
		reply, err := o.client.Send(ctx, history)
		cancel()
		o.complete(gen, reply, err)
	}()

	return nil
}

// complete applies the outcome of a remote request. The result is dropped
// when the generation no longer matches: the user switched, deleted, or
// replaced the session while the request was in flight.
func (o *Orchestrator) complete(gen uint64, reply string, sendErr error) {
	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		o.logger.Debug("dropping stale response", "generation", gen)
		return
	}

	if sendErr == nil {
		assistantMsg := model.NewAssistantMessage(reply)
		if err := o.store.Append(o.active, assistantMsg); err != nil {
			o.active.Messages = o.active.Messages[:len(o.active.Messages)-1]
			sendErr = err
		} else {
			o.state = StateIdle
			sessionID := o.active.ID
			cb := o.cb
			o.mu.Unlock()

			cb.busyChanged(false)
			cb.messageAppended(sessionID, assistantMsg)
			cb.sessionListChanged()
			return
		}
	}

	o.state = StateError
	cb := o.cb
	o.mu.Unlock()

	cb.busyChanged(false)
	cb.errorOccurred(sendErr)

	// The error state is transient: once delivered, return to idle so the
	// next submit does not need an explicit reset.
	o.mu.Lock()
	if gen == o.generation && o.state == StateError {
		o.state = StateIdle
	}
	o.mu.Unlock()
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

// NewSession abandons any in-flight request and replaces the active session
// with a fresh empty one. Nothing is written to disk until the new session's
// first message.
func (o *Orchestrator) NewSession() string {
	o.mu.Lock()
	o.generation++
	o.active = o.store.Create()
	o.state = StateIdle
	id := o.active.ID
	cb := o.cb
	o.mu.Unlock()

	o.cancelMgr.cancel()
	cb.busyChanged(false)
	return id
}

// SelectSession loads a stored session and makes it active, abandoning any
// in-flight request. On storage.ErrSessionNotFound the active session and
// state are left untouched.
func (o *Orchestrator) SelectSession(id string) error {
	sess, err := o.store.Load(id)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.generation++
	o.active = sess
	o.state = StateIdle
	cb := o.cb
	o.mu.Unlock()

	o.cancelMgr.cancel()
	cb.busyChanged(false)
	return nil
}

// DeleteSession removes a stored session. Deleting the active session also
// abandons any in-flight request and replaces it with a fresh empty one.
// Returns whether a session was actually removed.
func (o *Orchestrator) DeleteSession(id string) (bool, error) {
	existed, err := o.store.Delete(id)
	if err != nil {
		return false, err
	}

	o.mu.Lock()
	wasActive := o.active.ID == id
	if wasActive {
		o.generation++
		o.active = o.store.Create()
		o.state = StateIdle
	}
	cb := o.cb
	o.mu.Unlock()

	if wasActive {
		o.cancelMgr.cancel()
		cb.busyChanged(false)
	}
	if existed {
		cb.sessionListChanged()
	}
	return existed, nil
}

// List returns the chat index for all stored sessions, most recently
// modified first.
func (o *Orchestrator) List() ([]index.Entry, error) {
	sessions, err := o.store.List()
	if err != nil {
		return nil, err
	}
	return index.Build(sessions), nil
}

// Export writes a stored session as a markdown transcript to path.
func (o *Orchestrator) Export(id, path string) error {
	sess, err := o.store.Load(id)
	if err != nil {
		return err
	}
	return o.store.ExportMarkdown(sess, path)
}

// Close abandons any in-flight request.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.generation++
	o.mu.Unlock()
	o.cancelMgr.cancel()
}
