// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/awalker/deepterm/internal/model"
	"github.com/awalker/deepterm/internal/storage"
)

// fakeClient is a scriptable ChatClient. Each Send consumes one reply from
// the queue; an empty queue blocks until the context is cancelled.
type fakeClient struct {
	mu      sync.Mutex
	replies []fakeReply
	block   chan struct{} // when set, Send waits here before answering
	calls   int
}

type fakeReply struct {
	content string
	err     error
}

func (f *fakeClient) queue(content string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, fakeReply{content: content, err: err})
}

func (f *fakeClient) Send(ctx context.Context, messages []model.Message) (string, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	var reply fakeReply
	hasReply := len(f.replies) > 0
	if hasReply {
		reply = f.replies[0]
		f.replies = f.replies[1:]
	}
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if !hasReply {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return reply.content, reply.err
}

// waitForCalls blocks until the client has received at least n Send calls.
func waitForCalls(t *testing.T, f *fakeClient, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		calls := f.calls
		f.mu.Unlock()
		if calls >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d client calls", n)
}

// recorder collects callback invocations for assertions.
type recorder struct {
	mu          sync.Mutex
	appended    []model.Message
	errs        []error
	busy        []bool
	listChanges int
	settled     chan struct{} // signalled on busy=false
}

func newRecorder() *recorder {
	return &recorder{settled: make(chan struct{}, 16)}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnMessageAppended: func(sessionID string, msg model.Message) {
			r.mu.Lock()
			r.appended = append(r.appended, msg)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
		OnBusyChanged: func(busy bool) {
			r.mu.Lock()
			r.busy = append(r.busy, busy)
			r.mu.Unlock()
			if !busy {
				select {
				case r.settled <- struct{}{}:
				default:
				}
			}
		},
		OnSessionListChanged: func() {
			r.mu.Lock()
			r.listChanges++
			r.mu.Unlock()
		},
	}
}

func (r *recorder) waitSettled(t *testing.T) {
	t.Helper()
	select {
	case <-r.settled:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the request to settle")
	}
}

func newTestOrchestrator(t *testing.T, client ChatClient) (*Orchestrator, *storage.Store, *recorder) {
	t.Helper()
	store, err := storage.NewStoreWithDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	o := New(store, client)
	rec := newRecorder()
	o.SetCallbacks(rec.callbacks())
	t.Cleanup(o.Close)
	return o, store, rec
}

// =============================================================================
// SUBMIT TESTS
// =============================================================================

func TestSubmit_EmptyMessage(t *testing.T) {
	o, _, rec := newTestOrchestrator(t, &fakeClient{})

	for _, input := range []string{"", "   ", "\n\t "} {
		if err := o.Submit(input); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Submit(%q) = %v, want ErrEmptyMessage", input, err)
		}
	}
	if o.State() != StateIdle {
		t.Error("Empty submit must not change state")
	}
	if len(o.Messages()) != 0 {
		t.Error("Empty submit must not append anything")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.busy) != 0 || len(rec.appended) != 0 {
		t.Error("Empty submit must not fire callbacks")
	}
}

func TestSubmit_SuccessRoundtrip(t *testing.T) {
	client := &fakeClient{}
	client.queue("the answer", nil)
	o, store, rec := newTestOrchestrator(t, client)

	if err := o.Submit("  the question  "); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	rec.waitSettled(t)

	msgs := o.Messages()
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "the question" {
		t.Errorf("User message = %+v (content should be trimmed)", msgs[0])
	}
	if msgs[1].Role != model.RoleAssistant || msgs[1].Content != "the answer" {
		t.Errorf("Assistant message = %+v", msgs[1])
	}
	if o.State() != StateIdle {
		t.Errorf("State = %v after settle", o.State())
	}

	// Both messages must be durable.
	loaded, err := store.Load(o.ActiveID())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Messages) != 2 {
		t.Errorf("Expected 2 persisted messages, got %d", len(loaded.Messages))
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.appended) != 2 {
		t.Errorf("Expected 2 OnMessageAppended, got %d", len(rec.appended))
	}
	if len(rec.busy) < 2 || rec.busy[0] != true || rec.busy[len(rec.busy)-1] != false {
		t.Errorf("Busy transitions = %v", rec.busy)
	}
	if len(rec.errs) != 0 {
		t.Errorf("Unexpected errors: %v", rec.errs)
	}
}

func TestSubmit_SupersedesInFlight(t *testing.T) {
	client := &fakeClient{block: make(chan struct{})}
	client.queue("stale answer", nil)
	client.queue("fresh answer", nil)
	o, _, rec := newTestOrchestrator(t, client)

	if err := o.Submit("first"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	// Make sure the first request is in flight before superseding it, so the
	// replies pair up with the submits deterministically.
	waitForCalls(t, client, 1)

	if err := o.Submit("second"); err != nil {
		t.Fatalf("Superseding submit failed: %v", err)
	}

	close(client.block)
	rec.waitSettled(t)

	// Both user messages are kept; exactly one assistant message lands, and
	// it answers the superseding submit.
	msgs := o.Messages()
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages (user, user, assistant), got %d", len(msgs))
	}
	if msgs[0].Content != "first" || msgs[1].Content != "second" {
		t.Errorf("User messages = %q, %q", msgs[0].Content, msgs[1].Content)
	}
	if msgs[2].Role != model.RoleAssistant || msgs[2].Content != "fresh answer" {
		t.Errorf("Assistant message = %+v, want the superseding reply", msgs[2])
	}
	if o.State() != StateIdle {
		t.Errorf("State = %v after settle", o.State())
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errs) != 0 {
		t.Errorf("The superseded request's failure must not surface: %v", rec.errs)
	}
}

func TestSubmit_ClientErrorIsTransient(t *testing.T) {
	client := &fakeClient{}
	client.queue("", errors.New("boom"))
	client.queue("second try", nil)
	o, _, rec := newTestOrchestrator(t, client)

	if err := o.Submit("hello"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	rec.waitSettled(t)

	rec.mu.Lock()
	errCount := len(rec.errs)
	rec.mu.Unlock()
	if errCount != 1 {
		t.Fatalf("Expected 1 OnError, got %d", errCount)
	}

	// The failed user message is still persisted, and the orchestrator is
	// immediately usable again.
	if len(o.Messages()) != 1 {
		t.Errorf("User message should survive a failed request, got %d messages", len(o.Messages()))
	}
	if o.State() != StateIdle {
		t.Errorf("Error state should auto-reset to idle, got %v", o.State())
	}

	if err := o.Submit("retry"); err != nil {
		t.Fatalf("Retry submit failed: %v", err)
	}
	rec.waitSettled(t)
	msgs := o.Messages()
	if len(msgs) != 3 || msgs[2].Content != "second try" {
		t.Errorf("Retry should complete normally, got %d messages", len(msgs))
	}
}

func TestSubmit_StorageErrorSurfaces(t *testing.T) {
	store, err := storage.NewStoreWithDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	o := New(store, &fakeClient{})
	rec := newRecorder()
	o.SetCallbacks(rec.callbacks())
	defer o.Close()

	// Make the chat dir unwritable by replacing it with a file.
	if err := os.RemoveAll(store.BaseDir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(store.BaseDir, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	err = o.Submit("hello")
	if err == nil {
		t.Fatal("Submit should surface the storage error")
	}
	var storeErr *storage.StoreError
	if !errors.As(err, &storeErr) {
		t.Errorf("Expected *storage.StoreError, got %T", err)
	}
	if o.State() != StateIdle {
		t.Error("Failed persist must not change state")
	}
	if len(o.Messages()) != 0 {
		t.Error("Failed persist must roll back the in-memory append")
	}
}

// =============================================================================
// GENERATION FENCING TESTS
// =============================================================================

func TestNewSession_DropsInFlightResponse(t *testing.T) {
	client := &fakeClient{block: make(chan struct{})}
	client.queue("stale answer", nil)
	o, _, rec := newTestOrchestrator(t, client)

	if err := o.Submit("old question"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	oldID := o.ActiveID()

	newID := o.NewSession()
	if newID == oldID {
		t.Fatal("NewSession should replace the active session")
	}
	if o.State() != StateIdle {
		t.Errorf("State = %v after NewSession", o.State())
	}

	// Let the stale request finish; its reply must be dropped.
	close(client.block)
	time.Sleep(100 * time.Millisecond)

	if len(o.Messages()) != 0 {
		t.Error("Stale reply must not land in the new session")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, m := range rec.appended {
		if m.Content == "stale answer" {
			t.Error("Stale reply must not be announced")
		}
	}
}

func TestSelectSession_DropsInFlightResponse(t *testing.T) {
	client := &fakeClient{block: make(chan struct{})}
	client.queue("stale answer", nil)
	o, store, _ := newTestOrchestrator(t, client)

	// A stored session to switch to.
	other := store.Create()
	if err := store.Append(other, model.NewUserMessage("stored question")); err != nil {
		t.Fatal(err)
	}

	if err := o.Submit("pending question"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := o.SelectSession(other.ID); err != nil {
		t.Fatalf("SelectSession failed: %v", err)
	}
	if o.ActiveID() != other.ID {
		t.Error("SelectSession should switch the active session")
	}

	close(client.block)
	time.Sleep(100 * time.Millisecond)

	msgs := o.Messages()
	if len(msgs) != 1 || msgs[0].Content != "stored question" {
		t.Errorf("Selected session must not receive the stale reply: %+v", msgs)
	}
}

func TestSelectSession_NotFound(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &fakeClient{})
	before := o.ActiveID()

	err := o.SelectSession("20990101_000000_ffff")
	if !errors.Is(err, storage.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
	if o.ActiveID() != before {
		t.Error("Failed select must leave the active session untouched")
	}
	if o.State() != StateIdle {
		t.Error("Failed select must leave the state untouched")
	}
}

// =============================================================================
// DELETE TESTS
// =============================================================================

func TestDeleteSession_Active(t *testing.T) {
	client := &fakeClient{}
	client.queue("answer", nil)
	o, store, rec := newTestOrchestrator(t, client)

	if err := o.Submit("question"); err != nil {
		t.Fatal(err)
	}
	rec.waitSettled(t)
	activeID := o.ActiveID()

	existed, err := o.DeleteSession(activeID)
	if err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if !existed {
		t.Error("DeleteSession should report the session existed")
	}
	if o.ActiveID() == activeID {
		t.Error("Deleting the active session should replace it with a fresh one")
	}
	if len(o.Messages()) != 0 {
		t.Error("Replacement session should be empty")
	}
	if _, err := store.Load(activeID); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Error("Deleted session should be gone from disk")
	}
}

func TestDeleteSession_Other(t *testing.T) {
	o, store, _ := newTestOrchestrator(t, &fakeClient{})

	other := store.Create()
	if err := store.Append(other, model.NewUserMessage("hi")); err != nil {
		t.Fatal(err)
	}
	activeID := o.ActiveID()

	existed, err := o.DeleteSession(other.ID)
	if err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if !existed {
		t.Error("DeleteSession should report the session existed")
	}
	if o.ActiveID() != activeID {
		t.Error("Deleting another session must not touch the active one")
	}
}

func TestDeleteSession_Missing(t *testing.T) {
	o, _, rec := newTestOrchestrator(t, &fakeClient{})

	existed, err := o.DeleteSession("20990101_000000_ffff")
	if err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if existed {
		t.Error("Missing session should report existed=false")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.listChanges != 0 {
		t.Error("Deleting a missing session must not fire OnSessionListChanged")
	}
}

// =============================================================================
// LIST TESTS
// =============================================================================

func TestList(t *testing.T) {
	client := &fakeClient{}
	client.queue("answer", nil)
	o, store, rec := newTestOrchestrator(t, client)

	older := store.Create()
	if err := store.Append(older, model.NewUserMessage("older chat")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	if err := o.Submit("newer chat"); err != nil {
		t.Fatal(err)
	}
	rec.waitSettled(t)

	entries, err := o.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != o.ActiveID() {
		t.Error("Most recently modified session should come first")
	}
	if entries[0].Title != "newer chat" {
		t.Errorf("Title = %q", entries[0].Title)
	}
}
