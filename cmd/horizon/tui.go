package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"horizon/internal/chat"
)

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	toolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	footerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
)

type streamEventMsg chat.StreamEvent

type turnDoneMsg struct{ err error }

// chatTUI is the full-screen chat. The session runs on its own goroutine;
// every applied event is forwarded into the bubbletea loop, which repaints
// from session snapshots.
type chatTUI struct {
	app     *app
	session *chat.Session
	events  chan chat.StreamEvent

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	busy  bool
	ready bool
	width int
}

func runChatTUI(a *app) error {
	events := make(chan chat.StreamEvent, 64)
	m := &chatTUI{
		app:    a,
		events: events,
	}
	m.session = chat.NewSession(
		chat.NewTransportStreamer(a.transport),
		chat.WithLogger(a.logger),
		chat.WithEventObserver(func(event chat.StreamEvent) {
			events <- event
		}),
	)

	m.input = textinput.New()
	m.input.Placeholder = "Ask about your research streams..."
	m.input.Focus()

	m.spinner = spinner.New()
	m.spinner.Spinner = spinner.Dot

	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (m *chatTUI) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForEvent())
}

func (m *chatTUI) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return streamEventMsg(<-m.events)
	}
}

func (m *chatTUI) startTurn(message string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), m.app.cfg.StreamTimeout)
		defer cancel()
		return turnDoneMsg{err: m.session.Send(ctx, message)}
	}
}

func (m *chatTUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		headerHeight := 2
		footerHeight := 3
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.busy {
				m.session.Cancel()
				return m, nil
			}
			return m, tea.Quit
		case tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			m.busy = true
			m.refresh()
			return m, tea.Batch(m.startTurn(text), m.spinner.Tick)
		}

	case streamEventMsg:
		m.refresh()
		cmds = append(cmds, m.waitForEvent())

	case turnDoneMsg:
		m.busy = false
		m.refresh()

	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// refresh rebuilds the transcript from a session snapshot.
func (m *chatTUI) refresh() {
	if !m.ready {
		return
	}
	var b strings.Builder

	for _, message := range m.session.Messages() {
		switch message.Role {
		case chat.RoleUser:
			b.WriteString(userStyle.Render("You"))
		case chat.RoleAssistant:
			b.WriteString(assistantStyle.Render("Horizon"))
		}
		b.WriteByte('\n')

		content := message.Content
		if message.Extras != nil {
			if message.Extras.Error {
				content = errorStyle.Render(content)
			}
			if message.Extras.Cancelled {
				content += statusStyle.Render("  (cancelled)")
			}
		}
		b.WriteString(content)
		b.WriteString("\n\n")
	}

	if streaming := m.session.StreamingText(); streaming != "" {
		b.WriteString(assistantStyle.Render("Horizon"))
		b.WriteByte('\n')
		b.WriteString(streaming)
		b.WriteString("\n")
	}
	if status := m.session.Status(); status != "" {
		b.WriteString(statusStyle.Render(status))
		b.WriteByte('\n')
	}
	if tool := m.session.ActiveTool(); tool != nil {
		line := "⚙ " + tool.Name
		if len(tool.Updates) > 0 {
			line += ": " + tool.Updates[len(tool.Updates)-1]
		}
		b.WriteString(toolStyle.Render(line))
		b.WriteByte('\n')
	}

	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(b.String()))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *chatTUI) View() string {
	if !m.ready {
		return "loading..."
	}

	header := headerStyle.Render("Knowledge Horizon")
	if m.busy {
		header += " " + m.spinner.View()
	}

	footer := footerStyle.Render(fmt.Sprintf(
		"enter: send · ctrl+c: %s · esc: quit · ≈ %d tokens",
		map[bool]string{true: "cancel turn", false: "quit"}[m.busy],
		chat.EstimateTokens(m.session.Messages()),
	))

	return fmt.Sprintf("%s\n%s\n%s\n%s", header, m.viewport.View(), m.input.View(), footer)
}
