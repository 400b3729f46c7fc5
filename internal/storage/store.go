// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/awalker/deepterm/internal/model"
	"github.com/awalker/deepterm/internal/util"
)

// =============================================================================
// SESSION STORE
// =============================================================================

// Store handles session persistence. Each session lives in its own JSON file
// named <id>.json under BaseDir.
type Store struct {
	// BaseDir is the directory holding session files.
	// Default: ~/.deepterm/chats/
	BaseDir string

	logger *log.Logger
}

// NewStore creates a store rooted at the default chat directory.
func NewStore() (*Store, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewStoreWithDir(filepath.Join(homeDir, ".deepterm", "chats"))
}

// NewStoreWithDir creates a store rooted at a custom directory.
func NewStoreWithDir(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &Store{
		BaseDir: baseDir,
		logger:  log.Default(),
	}, nil
}

// SetLogger replaces the store's logger.
func (s *Store) SetLogger(l *log.Logger) {
	if l != nil {
		s.logger = l
	}
}

// =============================================================================
// CREATE / APPEND
// =============================================================================

// Create returns a fresh empty session. Nothing is written to disk until the
// first Append, so abandoned empty sessions never leave files behind.
func (s *Store) Create() *model.Session {
	return model.NewSession()
}

// Append adds msg to sess and rewrites the session file atomically. The write
// replaces the whole file, so the on-disk state always reflects a complete
// message list.
func (s *Store) Append(sess *model.Session, msg model.Message) error {
	sess.Append(msg)
	return s.save(sess)
}

func (s *Store) save(sess *model.Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return &StoreError{Message: "failed to encode session", Err: err}
	}
	if err := util.AtomicWriteFile(s.filePath(sess.ID), data, 0600); err != nil {
		return &StoreError{Message: "failed to write session file", Err: err}
	}
	return nil
}

// =============================================================================
// LOAD / LIST
// =============================================================================

// Load reads a session by ID. A missing file and a corrupt file both surface
// as ErrSessionNotFound; callers cannot select a session that cannot be
// decoded, so the two cases are equivalent to them.
func (s *Store) Load(id string) (*model.Session, error) {
	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, &StoreError{Message: "failed to read session file", Err: err}
	}

	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, &StoreError{Message: "session not found", Err: err}
	}
	if err := sess.Validate(); err != nil {
		return nil, &StoreError{Message: "session not found", Err: err}
	}
	return &sess, nil
}

// List loads every session under BaseDir. Files that cannot be decoded are
// skipped with a warning so one corrupt file never hides the rest of the
// history. A missing base directory yields an empty list; any other directory
// error is returned.
func (s *Store) List() ([]*model.Session, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*model.Session{}, nil
		}
		return nil, &StoreError{Message: "failed to list sessions", Err: err}
	}

	sessions := make([]*model.Session, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		sess, err := s.Load(id)
		if err != nil {
			s.logger.Warn("skipping unreadable session file", "file", entry.Name(), "err", err)
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// =============================================================================
// DELETE / EXPORT
// =============================================================================

// Delete removes a session file. It returns true when a file was removed and
// false when no session with that ID existed.
func (s *Store) Delete(id string) (bool, error) {
	err := os.Remove(s.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &StoreError{Message: "failed to delete session file", Err: err}
	}
	return true, nil
}

// ExportMarkdown writes the session as a markdown transcript to path.
func (s *Store) ExportMarkdown(sess *model.Session, path string) error {
	if err := util.AtomicWriteFile(path, []byte(sess.Markdown()), 0644); err != nil {
		return &StoreError{Message: "failed to export session", Err: err}
	}
	return nil
}

func (s *Store) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrSessionNotFound is returned when a session does not exist or cannot be
// decoded. Use errors.Is(err, ErrSessionNotFound) to check for it.
var ErrSessionNotFound = &StoreError{Message: "session not found"}

// StoreError represents a session storage error. It can be compared with
// errors.Is and unwrapped to reach the underlying OS or JSON error.
type StoreError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is matches store errors by message, so wrapped errors still compare equal
// to the ErrSessionNotFound sentinel.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}
