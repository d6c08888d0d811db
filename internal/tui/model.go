package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/statementrag/rag/internal/domain"
)

// exchange is one question and its answer.
type exchange struct {
	question string
	answer   string
}

// answerMsg carries the result of an asynchronous query.
type answerMsg struct {
	question string
	answer   string
	err      error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx      context.Context
	querier  domain.Querier
	input    textinput.Model
	viewport viewport.Model
	history  []exchange
	summary  string
	status   string
	pending  bool
	ready    bool
}

// New creates a new TUI model instance. summary is shown under the header.
func New(ctx context.Context, querier domain.Querier, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "Question: "
	ti.Placeholder = "Ask about your statements, 'exit' to quit"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		querier:  querier,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   "Ready.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil
	case answerMsg:
		m.pending = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.history = append(m.history, exchange{question: msg.question, answer: msg.answer})
		m.status = fmt.Sprintf("Answered %q", msg.question)
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			switch strings.ToLower(q) {
			case "exit", "quit":
				return m, tea.Quit
			}
			m.input.Reset()
			m.pending = true
			m.status = "Thinking..."
			return m, m.ask(q)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(q string) tea.Cmd {
	ctx, querier := m.ctx, m.querier
	return func() tea.Msg {
		answer, err := querier.Query(ctx, q)
		return answerMsg{question: q, answer: answer, err: err}
	}
}

// View renders the header, conversation, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Bank Statement Q&A")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	if strings.HasPrefix(m.status, "Error:") {
		status = errorStyle.Render(m.status)
	}
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
}

func (m Model) renderHistory() string {
	if len(m.history) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, ex := range m.history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("Q: " + ex.question))
		b.WriteString("\n")
		b.WriteString(ex.answer)
	}
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
