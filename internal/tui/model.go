package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docqa/internal/domain"
)

// AnswerPort is the TUI-facing subset of the question answering pipeline.
type AnswerPort interface {
	Answer(query string, history []domain.Message, topK int) (string, []domain.RankedResult, error)
}

// Model is the Bubble Tea model for the interactive chat session.
type Model struct {
	pipeline AnswerPort
	topK     int

	input    textinput.Model
	viewport viewport.Model
	history  []domain.Message
	sources  []domain.RankedResult
	status   string
	ready    bool
	waiting  bool
}

// answerMsg carries one completed generation round back into Update.
type answerMsg struct {
	question string
	answer   string
	sources  []domain.RankedResult
	err      error
}

// New creates a chat model over the given pipeline.
func New(pipeline AnswerPort, topK int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about the indexed documents"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		pipeline: pipeline,
		topK:     topK,
		input:    ti,
		viewport: vp,
		status:   "Ready. Type a question and press Enter.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ch := chatBoxStyle.GetFrameSize()
		_, qh := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input frame, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-ch)
		m.viewport.SetContent(m.renderConversation())
		return m, nil
	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.history = append(m.history,
				domain.Message{Role: domain.RoleUser, Content: msg.question},
				domain.Message{Role: domain.RoleAssistant, Content: msg.answer},
			)
			m.sources = msg.sources
			m.status = fmt.Sprintf("Answered from %d source chunks.", len(msg.sources))
		}
		m.viewport.SetContent(m.renderConversation())
		m.viewport.GotoBottom()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.waiting {
				m.input.SetValue("")
				m.waiting = true
				m.status = "Thinking..."
				return m, m.ask(q)
			}
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ask runs retrieval and generation off the update loop.
func (m Model) ask(question string) tea.Cmd {
	pipeline, history, topK := m.pipeline, m.history, m.topK
	return func() tea.Msg {
		answer, sources, err := pipeline.Answer(question, history, topK)
		return answerMsg{question: question, answer: answer, sources: sources, err: err}
	}
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Document Q&A")
	chat := chatBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + chat + "\n" + input + "\n" + status
}

func (m Model) renderConversation() string {
	if len(m.history) == 0 {
		return "No conversation yet."
	}
	var b strings.Builder
	for _, msg := range m.history {
		switch msg.Role {
		case domain.RoleUser:
			b.WriteString(userStyle.Render("You: ") + msg.Content + "\n\n")
		case domain.RoleAssistant:
			b.WriteString(assistantStyle.Render("Assistant: ") + msg.Content + "\n\n")
		}
	}
	if len(m.sources) > 0 {
		b.WriteString(sourceStyle.Render("Sources") + "\n")
		for i, src := range m.sources {
			b.WriteString(fmt.Sprintf("%d. (score=%.3f) %s\n", i+1, src.Score, snippet(src.ChunkText, 120)))
		}
	}
	return b.String()
}

func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}

var (
	chatBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Bold(true)
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
