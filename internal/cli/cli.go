// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the plain-terminal REPL.
package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information (can be overridden at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	// CmdTUI launches the full-screen terminal UI (the default).
	CmdTUI Command = iota

	// CmdChat launches the plain line-oriented REPL.
	CmdChat

	// CmdVersion prints version information.
	CmdVersion

	// CmdHelp prints usage.
	CmdHelp
)

// Args holds parsed global flags.
type Args struct {
	Plain   bool   // --plain: force the line-oriented REPL
	ChatDir string // --chat-dir: override the session directory
	Model   string // --model: override the chat model
}

// Parse reads os.Args and returns the command to run plus its flags.
func Parse() (Command, Args) {
	args := os.Args[1:]
	var parsed Args
	var remaining []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--plain" || arg == "-p":
			parsed.Plain = true
		case arg == "--chat-dir" && i+1 < len(args):
			i++
			parsed.ChatDir = args[i]
		case strings.HasPrefix(arg, "--chat-dir="):
			parsed.ChatDir = strings.TrimPrefix(arg, "--chat-dir=")
		case arg == "--model" && i+1 < len(args):
			i++
			parsed.Model = args[i]
		case strings.HasPrefix(arg, "--model="):
			parsed.Model = strings.TrimPrefix(arg, "--model=")
		case arg == "--version" || arg == "-v":
			return CmdVersion, parsed
		case arg == "--help" || arg == "-h":
			return CmdHelp, parsed
		default:
			remaining = append(remaining, arg)
		}
	}

	if len(remaining) == 0 {
		if parsed.Plain {
			return CmdChat, parsed
		}
		return CmdTUI, parsed
	}

	cmd := strings.ToLower(remaining[0])

	switch cmd {
	case "tui":
		return CmdTUI, parsed
	case "chat":
		return CmdChat, parsed
	case "version":
		return CmdVersion, parsed
	case "help":
		return CmdHelp, parsed
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q, starting the TUI. See 'deepterm help'.\n", cmd)
		return CmdTUI, parsed
	}
}

// PrintVersion writes version information to stdout.
func PrintVersion() {
	fmt.Printf("deepterm %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
}

// PrintUsage writes usage information to stdout.
func PrintUsage() {
	fmt.Print(`deepterm - terminal client for DeepSeek chat

Usage:
  deepterm [flags]            launch the full-screen TUI
  deepterm chat [flags]       launch the plain line-oriented REPL
  deepterm version            print version information
  deepterm help               print this help

Flags:
  -p, --plain                 force the plain REPL
      --chat-dir DIR          store sessions under DIR
      --model NAME            chat model to request
  -v, --version               print version information
  -h, --help                  print this help

Environment:
  DEEPSEEK_API_KEY            API key (overrides the config file)
  DEEPTERM_MODEL              chat model (overrides the config file)
  DEEPTERM_CHAT_DIR           session directory
  DEEPTERM_BASE_URL           API base URL
`)
}
