// deepterm - a terminal client for DeepSeek chat.
//
// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"golang.org/x/term"

	"github.com/awalker/deepterm/internal/cli"
	"github.com/awalker/deepterm/internal/config"
	"github.com/awalker/deepterm/internal/deepseek"
	"github.com/awalker/deepterm/internal/model"
	"github.com/awalker/deepterm/internal/session"
	"github.com/awalker/deepterm/internal/storage"
	"github.com/awalker/deepterm/internal/ui/chat"
	"github.com/awalker/deepterm/internal/ui/styles"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdVersion:
		cli.PrintVersion()
		return
	case cli.CmdHelp:
		cli.PrintUsage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if args.ChatDir != "" {
		cfg.ChatDir = args.ChatDir
	}
	if args.Model != "" {
		cfg.Model = args.Model
	}

	// Without a key the user can still browse saved chats; sending fails
	// with a clear error, so just point at the fix up front.
	if cfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "Warning: no API key configured.")
		fmt.Fprintln(os.Stderr, "Set the DEEPSEEK_API_KEY environment variable, or add")
		fmt.Fprintln(os.Stderr, "  api_key = \"sk-...\"")
		fmt.Fprintln(os.Stderr, "to ~/.deepterm/config.toml.")
	}

	logger := newLogger()

	chatDir, err := cfg.DefaultChatDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	store, err := storage.NewStoreWithDir(chatDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open chat directory: %v\n", err)
		os.Exit(1)
	}
	store.SetLogger(logger.WithPrefix("storage"))

	client := deepseek.NewClient(cfg.APIKey).
		WithBaseURL(cfg.BaseURL).
		WithModel(cfg.Model).
		WithTimeout(time.Duration(cfg.TimeoutSecs) * time.Second).
		WithSampling(cfg.Temperature, cfg.MaxTokens).
		WithLogger(logger.WithPrefix("deepseek"))

	orch := session.New(store, client)
	orch.SetLogger(logger.WithPrefix("session"))
	defer orch.Close()

	// The TUI needs a real terminal; otherwise fall back to the plain REPL.
	plain := cmd == cli.CmdChat || args.Plain || cfg.UI.Plain ||
		!term.IsTerminal(int(os.Stdout.Fd()))

	if plain {
		runREPL(orch, cfg)
		return
	}
	runTUI(orch, store, cfg, logger)
}

// newLogger builds the application logger. The TUI owns the terminal, so
// logs go to a file under the config directory; set DEEPTERM_DEBUG=1 for
// debug level.
func newLogger() *log.Logger {
	var out io.Writer = io.Discard
	if dir, err := config.ConfigDir(); err == nil {
		if err := os.MkdirAll(dir, 0755); err == nil {
			f, err := os.OpenFile(filepath.Join(dir, "deepterm.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
			if err == nil {
				out = f
			}
		}
	}

	logger := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	if os.Getenv("DEEPTERM_DEBUG") == "1" {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func runREPL(orch *session.Orchestrator, cfg *config.Config) {
	repl := cli.NewREPL(orch, cfg)
	defer repl.Close()
	if err := repl.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runTUI(orch *session.Orchestrator, store *storage.Store, cfg *config.Config, logger *log.Logger) {
	theme := styles.NewTheme()
	m := chat.New(orch, theme, cfg.UI.Markdown)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Orchestrator callbacks run on background goroutines; forward them into
	// the program as messages so all UI state changes flow through Update.
	orch.SetCallbacks(session.Callbacks{
		OnMessageAppended: func(sessionID string, msg model.Message) {
			p.Send(chat.MessageAppendedMsg{SessionID: sessionID, Message: msg})
		},
		OnError: func(err error) {
			p.Send(chat.ErrorMsg{Err: err})
		},
		OnBusyChanged: func(busy bool) {
			p.Send(chat.BusyMsg{Busy: busy})
		},
		OnSessionListChanged: func() {
			p.Send(chat.SessionListChangedMsg{})
		},
	})

	// Refresh the sidebar when another process touches the chat directory.
	watcher, err := store.Watch()
	if err != nil {
		logger.Warn("directory watcher unavailable", "err", err)
	} else {
		defer watcher.Close()
		go func() {
			for range watcher.Events() {
				p.Send(chat.SessionListChangedMsg{})
			}
		}()
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
