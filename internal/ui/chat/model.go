// Copyright (c) 2025 Alex Walker
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/awalker/deepterm/internal/index"
	"github.com/awalker/deepterm/internal/model"
	"github.com/awalker/deepterm/internal/session"
	"github.com/awalker/deepterm/internal/ui/styles"
	"github.com/awalker/deepterm/internal/util"
)

const sidebarWidth = 34

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view. It keeps a local mirror of
// the active session's messages for rendering; the orchestrator remains the
// source of truth.
type Model struct {
	orch   *session.Orchestrator
	theme  *styles.Theme
	keyMap KeyMap

	width  int
	height int
	ready  bool

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model

	markdown bool
	renderer *glamour.TermRenderer

	activeID string
	messages []model.Message

	entries     []index.Entry
	selected    int
	listFocused bool

	busy    bool
	errText string
}

// New creates the chat view bound to an orchestrator.
func New(orch *session.Orchestrator, theme *styles.Theme, markdown bool) Model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.Prompt = theme.InputPrompt.Render("> ")
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Line

	return Model{
		orch:     orch,
		theme:    theme,
		keyMap:   DefaultKeyMap(),
		input:    input,
		spin:     sp,
		markdown: markdown,
		activeID: orch.ActiveID(),
		messages: orch.Messages(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.refreshListCmd())
}

// refreshListCmd reloads the chat index off the Update loop.
func (m Model) refreshListCmd() tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		entries, err := orch.List()
		return sessionListMsg{entries: entries, err: err}
	}
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case MessageAppendedMsg:
		if msg.SessionID == m.activeID {
			m.messages = append(m.messages, msg.Message)
			m.errText = ""
			m.refreshViewport()
		}
		return m, nil

	case BusyMsg:
		m.busy = msg.Busy
		if m.busy {
			return m, m.spin.Tick
		}
		return m, nil

	case ErrorMsg:
		if msg.Err != nil {
			m.errText = msg.Err.Error()
		}
		return m, nil

	case SessionListChangedMsg:
		return m, m.refreshListCmd()

	case sessionListMsg:
		if msg.err != nil {
			m.errText = msg.err.Error()
			return m, nil
		}
		m.entries = msg.entries
		if m.selected >= len(m.entries) {
			m.selected = 0
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleResize(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height

	contentWidth := m.width - sidebarWidth - 2
	if contentWidth < 20 {
		contentWidth = 20
	}
	contentHeight := m.height - 4
	if contentHeight < 3 {
		contentHeight = 3
	}

	if !m.ready {
		m.viewport = viewport.New(contentWidth, contentHeight)
		m.ready = true
	} else {
		m.viewport.Width = contentWidth
		m.viewport.Height = contentHeight
	}
	m.input.Width = m.width - 6

	if m.markdown {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(contentWidth),
		)
		if err == nil {
			m.renderer = renderer
		}
	}

	m.refreshViewport()
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.NewChat):
		m.activeID = m.orch.NewSession()
		m.messages = nil
		m.errText = ""
		m.listFocused = false
		m.input.Focus()
		m.refreshViewport()
		return m, m.refreshListCmd()

	case key.Matches(msg, m.keyMap.DeleteChat):
		id := m.activeID
		if _, err := m.orch.DeleteSession(id); err != nil {
			m.errText = err.Error()
			return m, nil
		}
		m.activeID = m.orch.ActiveID()
		m.messages = m.orch.Messages()
		m.refreshViewport()
		return m, m.refreshListCmd()

	case key.Matches(msg, m.keyMap.FocusList):
		m.listFocused = !m.listFocused
		if m.listFocused {
			m.input.Blur()
		} else {
			m.input.Focus()
		}
		return m, nil

	case key.Matches(msg, m.keyMap.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keyMap.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	if m.listFocused {
		return m.handleListKey(msg)
	}

	if key.Matches(msg, m.keyMap.Submit) {
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Up):
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Down):
		if m.selected < len(m.entries)-1 {
			m.selected++
		}
		return m, nil

	case key.Matches(msg, m.keyMap.Submit):
		if m.selected >= len(m.entries) {
			return m, nil
		}
		id := m.entries[m.selected].ID
		if err := m.orch.SelectSession(id); err != nil {
			m.errText = err.Error()
			return m, m.refreshListCmd()
		}
		m.activeID = id
		m.messages = m.orch.Messages()
		m.errText = ""
		m.listFocused = false
		m.input.Focus()
		m.refreshViewport()
		return m, nil
	}
	return m, nil
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	err := m.orch.Submit(text)
	switch {
	case err == nil:
		m.input.Reset()
		m.errText = ""
		return m, nil
	case err == session.ErrEmptyMessage:
		return m, nil
	default:
		m.errText = err.Error()
		return m, nil
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}

	header := m.theme.Header.Render("deepterm")
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), m.viewport.View())

	inputLine := m.input.View()
	if m.busy {
		inputLine = m.spin.View() + " waiting for reply..."
	}

	status := m.theme.StatusBar.Render(m.keyMap.HelpLine())
	if m.errText != "" {
		status = m.theme.ErrorText.Render(m.errText)
	}

	return strings.Join([]string{header, body, inputLine, status}, "\n")
}

func (m Model) renderSidebar() string {
	var sb strings.Builder
	sb.WriteString(m.theme.SidebarTitle.Render("Chats"))
	sb.WriteString("\n")

	if len(m.entries) == 0 {
		sb.WriteString(m.theme.SidebarItem.Render("(none yet)"))
	}
	maxRows := m.viewport.Height - 1
	for i, e := range m.entries {
		if i >= maxRows {
			break
		}
		line := util.TruncateWidth(e.Title, sidebarWidth-4)
		style := m.theme.SidebarItem
		prefix := "  "
		if m.listFocused && i == m.selected {
			style = m.theme.SidebarSelected
			prefix = "> "
		} else if e.ID == m.activeID {
			style = m.theme.SidebarSelected
			prefix = "* "
		}
		sb.WriteString(style.Render(prefix + line))
		sb.WriteString("\n")
	}

	return m.theme.Sidebar.
		Width(sidebarWidth).
		Height(m.viewport.Height).
		Render(sb.String())
}

// refreshViewport re-renders the transcript and scrolls to the bottom.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func (m *Model) renderMessages() string {
	if len(m.messages) == 0 {
		return m.theme.HelpText.Render("Start typing to begin a new chat.")
	}

	var sb strings.Builder
	for _, msg := range m.messages {
		label := m.theme.RoleLabel(msg.Role.String()).Render(msg.Role.DisplayName())
		ts := m.theme.Timestamp.Render(msg.Timestamp.Format("15:04"))
		sb.WriteString(label + " " + ts + "\n")

		content := msg.Content
		if msg.Role == model.RoleAssistant && m.renderer != nil {
			if rendered, err := m.renderer.Render(content); err == nil {
				content = strings.TrimRight(rendered, "\n")
			}
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
