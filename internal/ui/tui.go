package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"meshnode/internal/action"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	accentColor  = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	logPanelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	inputStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1)

	sentStyle   = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	systemStyle = lipgloss.NewStyle().Foreground(accentColor).Italic(true)
	aiStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))
	warnStyle   = lipgloss.NewStyle().Foreground(warningColor)
	errStyle    = lipgloss.NewStyle().Foreground(errorColor)
)

// TUI is the interactive front end. Log and Shutdown may be called from any
// goroutine, before or after the program starts, and never block.
type TUI struct {
	title string

	mu       sync.Mutex
	pending  []string
	quit     bool
	notify   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func NewTUI(title string) *TUI {
	return &TUI{
		title:  title,
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

func (t *TUI) Log(text string) {
	t.mu.Lock()
	t.pending = append(t.pending, text)
	t.mu.Unlock()
	t.wake()
}

func (t *TUI) Shutdown() {
	t.mu.Lock()
	t.quit = true
	t.mu.Unlock()
	t.wake()
}

func (t *TUI) wake() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// Run blocks until the user quits or Shutdown is called.
func (t *TUI) Run(mesh Mesh) error {
	defer t.stopOnce.Do(func() { close(t.stop) })
	p := tea.NewProgram(newModel(t, mesh), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

func (t *TUI) drain() logBatchMsg {
	t.mu.Lock()
	defer t.mu.Unlock()
	msg := logBatchMsg{lines: t.pending, quit: t.quit}
	t.pending = nil
	return msg
}

// waitForLog delivers everything logged since the previous batch.
func (t *TUI) waitForLog() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-t.notify:
			return t.drain()
		case <-t.stop:
			return nil
		}
	}
}

type logBatchMsg struct {
	lines []string
	quit  bool
}

type tickMsg time.Time

type model struct {
	tui   *TUI
	mesh  Mesh
	lines []string
	peers int

	viewport viewport.Model
	input    textinput.Model
	ready    bool
	width    int
	height   int
}

func newModel(t *TUI, mesh Mesh) model {
	ti := textinput.New()
	ti.Placeholder = "Type your message and press Enter..."
	ti.Prompt = "> "
	ti.CharLimit = 4096
	ti.Focus()

	return model{
		tui:      t,
		mesh:     mesh,
		viewport: viewport.New(80, 20),
		input:    ti,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.tui.waitForLog(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.mesh.Submit(action.QuitToken)
			return m, tea.Quit
		case tea.KeyEnter:
			if submitInput(m.mesh, m.appendLine, m.input.Value()) {
				return m, tea.Quit
			}
			m.input.Reset()
			m.refresh()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		// header 3, input 4, status 1, log border 2
		m.viewport.Width = max(m.width-4, 10)
		m.viewport.Height = max(m.height-10, 3)
		m.input.Width = max(m.width-8, 10)
		m.refresh()
		return m, nil

	case logBatchMsg:
		for _, line := range msg.lines {
			m.appendLine(line)
		}
		m.refresh()
		if msg.quit {
			return m, tea.Quit
		}
		return m, m.tui.waitForLog()

	case tickMsg:
		m.peers = m.mesh.ConnectionCount()
		return m, tickCmd()
	}

	var tiCmd, vpCmd tea.Cmd
	m.input, tiCmd = m.input.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd)
}

func (m *model) appendLine(line string) {
	m.lines = append(m.lines, line)
}

func (m *model) refresh() {
	var b strings.Builder
	for _, line := range m.lines {
		b.WriteString(renderLine(line))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func renderLine(line string) string {
	switch {
	case strings.HasPrefix(line, "[SENT]"):
		return sentStyle.Render(line)
	case strings.HasPrefix(line, "[AI ERROR]"), strings.HasPrefix(line, "[ERROR]"):
		return errStyle.Render(line)
	case strings.HasPrefix(line, "[AI"):
		return aiStyle.Render(line)
	case strings.HasPrefix(line, "[WARNING]"):
		return warnStyle.Render(line)
	case strings.HasPrefix(line, "[SYSTEM]"):
		return systemStyle.Render(line)
	default:
		return line
	}
}

func (m model) View() string {
	if !m.ready {
		return "\n  Starting node...\n"
	}

	header := headerStyle.Render(m.tui.title)
	logPanel := logPanelStyle.Width(m.width - 2).Render(m.viewport.View())
	status := statusBarStyle.Render(fmt.Sprintf("Peers: %d | Enter to send | !sos <text> for help | Esc to quit", m.peers))
	input := inputStyle.Width(m.width - 2).Render(m.input.View())

	return lipgloss.JoinVertical(lipgloss.Left, header, logPanel, status, input)
}
