// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/awalker/deepterm/internal/config"
	"github.com/awalker/deepterm/internal/index"
	"github.com/awalker/deepterm/internal/model"
	"github.com/awalker/deepterm/internal/session"
)

var (
	promptStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "25", Dark: "39"})
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "25", Dark: "39"})
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "124", Dark: "203"})
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "245", Dark: "241"})
)

// replEvent carries one settled request outcome from the orchestrator
// callbacks to the REPL loop.
type replEvent struct {
	reply model.Message
	err   error
}

// REPL is the plain line-oriented chat interface, used when stdout is not a
// terminal capable of the full-screen TUI or when --plain is given.
type REPL struct {
	orch        *session.Orchestrator
	cfg         *config.Config
	line        *liner.State
	historyFile string

	// entries is the last /list output; numeric arguments to /load, /delete
	// and /export resolve against it.
	entries []index.Entry

	events chan replEvent
}

// NewREPL creates a REPL bound to an orchestrator. Call Run to enter the
// loop and Close when done.
func NewREPL(orch *session.Orchestrator, cfg *config.Config) *REPL {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	r := &REPL{
		orch:        orch,
		cfg:         cfg,
		line:        line,
		historyFile: filepath.Join(configDir, "history"),
		events:      make(chan replEvent, 4),
	}
	r.loadHistory()

	orch.SetCallbacks(session.Callbacks{
		OnMessageAppended: func(sessionID string, msg model.Message) {
			if msg.Role == model.RoleAssistant {
				r.events <- replEvent{reply: msg}
			}
		},
		OnError: func(err error) {
			r.events <- replEvent{err: err}
		},
	})
	return r
}

// Close saves history and releases the terminal.
func (r *REPL) Close() {
	r.saveHistory()
	r.line.Close()
}

func (r *REPL) loadHistory() {
	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
}

func (r *REPL) saveHistory() {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0755); err != nil {
		return
	}
	f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	r.line.WriteHistory(f)
}

// Run enters the REPL loop and blocks until the user quits.
func (r *REPL) Run() error {
	fmt.Println(mutedStyle.Render("deepterm " + Version + " - type /help for commands, /quit to exit"))

	for {
		input, err := r.line.Prompt(promptStyle.Render("you> "))
		if err != nil {
			// Ctrl+C or Ctrl+D exits gracefully.
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println()
				return nil
			}
			fmt.Println()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := r.handleCommand(input); quit {
				return nil
			}
			continue
		}

		r.sendMessage(input)
	}
}

// sendMessage submits the input and waits for the settled outcome.
func (r *REPL) sendMessage(input string) {
	if err := r.orch.Submit(input); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("[Error] ")+err.Error())
		return
	}

	fmt.Println(mutedStyle.Render("...thinking"))
	ev := <-r.events
	if ev.err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("[Error] ")+ev.err.Error())
		return
	}

	label := assistantStyle.Render("assistant>")
	if r.cfg.UI.ShowTimestamps {
		label += mutedStyle.Render(" " + ev.reply.Timestamp.Format("15:04"))
	}
	fmt.Println(label + " " + ev.reply.Content)
	fmt.Println()
}

// handleCommand dispatches a slash command. Returns true when the REPL
// should exit.
func (r *REPL) handleCommand(input string) bool {
	fields := strings.Fields(input)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "/quit", "/exit", "/q":
		return true

	case "/help", "/?":
		r.printHelp()

	case "/new":
		id := r.orch.NewSession()
		fmt.Println(mutedStyle.Render("started new chat " + id))

	case "/list", "/ls":
		r.listSessions()

	case "/load", "/open":
		if len(args) != 1 {
			fmt.Println(mutedStyle.Render("usage: /load <number|id>"))
			return false
		}
		r.loadSession(args[0])

	case "/delete", "/rm":
		if len(args) != 1 {
			fmt.Println(mutedStyle.Render("usage: /delete <number|id>"))
			return false
		}
		r.deleteSession(args[0])

	case "/export":
		if len(args) != 2 {
			fmt.Println(mutedStyle.Render("usage: /export <number|id> <path>"))
			return false
		}
		r.exportSession(args[0], args[1])

	default:
		fmt.Println(mutedStyle.Render("unknown command " + cmd + ", try /help"))
	}
	return false
}

func (r *REPL) printHelp() {
	fmt.Print(`Commands:
  /new                  start a new chat
  /list                 list saved chats
  /load <n|id>          switch to a saved chat
  /delete <n|id>        delete a saved chat
  /export <n|id> <path> export a chat as markdown
  /help                 show this help
  /quit                 exit
`)
}

func (r *REPL) listSessions() {
	entries, err := r.orch.List()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("[Error] ")+err.Error())
		return
	}
	r.entries = entries
	fmt.Print(index.Format(entries))
}

// resolveRef maps a /list row number or a raw session ID to a session ID.
func (r *REPL) resolveRef(ref string) (string, bool) {
	if n, err := strconv.Atoi(ref); err == nil {
		if len(r.entries) == 0 {
			fmt.Println(mutedStyle.Render("run /list first to use numbers"))
			return "", false
		}
		if n < 1 || n > len(r.entries) {
			fmt.Println(mutedStyle.Render("no such chat number"))
			return "", false
		}
		return r.entries[n-1].ID, true
	}
	return ref, true
}

func (r *REPL) loadSession(ref string) {
	id, ok := r.resolveRef(ref)
	if !ok {
		return
	}
	if err := r.orch.SelectSession(id); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("[Error] ")+err.Error())
		return
	}

	// Replay the transcript so the user sees where they left off.
	for _, msg := range r.orch.Messages() {
		label := promptStyle.Render("you>")
		if msg.Role == model.RoleAssistant {
			label = assistantStyle.Render("assistant>")
		}
		fmt.Println(label + " " + msg.Content)
	}
	fmt.Println()
}

func (r *REPL) deleteSession(ref string) {
	id, ok := r.resolveRef(ref)
	if !ok {
		return
	}
	existed, err := r.orch.DeleteSession(id)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("[Error] ")+err.Error())
		return
	}
	if !existed {
		fmt.Println(mutedStyle.Render("no such chat"))
		return
	}
	fmt.Println(mutedStyle.Render("deleted " + id))
}

func (r *REPL) exportSession(ref, path string) {
	id, ok := r.resolveRef(ref)
	if !ok {
		return
	}
	if err := r.orch.Export(id, path); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("[Error] ")+err.Error())
		return
	}
	fmt.Println(mutedStyle.Render("exported to " + path))
}
