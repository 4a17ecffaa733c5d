package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/madcore/madcore/pkg/engine"
)

// ErrAborted is returned when the operator cancels the questionnaire.
var ErrAborted = errors.New("prompt aborted")

var (
	promptStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
)

// TerminalPrompter asks questions on a terminal, one at a time.
type TerminalPrompter struct {
	in  io.Reader
	out io.Writer
}

// NewTerminalPrompter creates a prompter. Nil streams mean stdin and stdout.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &TerminalPrompter{in: in, out: out}
}

// Ask implements engine.Prompter.
func (p *TerminalPrompter) Ask(ctx context.Context, questions []engine.Question) (map[string]interface{}, error) {
	if len(questions) == 0 {
		return map[string]interface{}{}, nil
	}

	prog := tea.NewProgram(newQuestionModel(questions),
		tea.WithInput(p.in),
		tea.WithOutput(p.out),
		tea.WithContext(ctx),
	)
	final, err := prog.Run()
	if err != nil {
		return nil, fmt.Errorf("prompt failed: %w", err)
	}

	m, ok := final.(questionModel)
	if !ok {
		return nil, fmt.Errorf("unexpected prompt model %T", final)
	}
	if m.aborted {
		return nil, ErrAborted
	}
	return m.answers, nil
}

// StdinIsTTY reports whether stdin is an interactive terminal.
func StdinIsTTY() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// questionModel walks through the questions. Free-form questions use a text
// input pre-filled with the default; questions with options are a single choice.
type questionModel struct {
	questions []engine.Question
	index     int
	input     textinput.Model
	cursor    int
	answers   map[string]interface{}
	errMsg    string
	aborted   bool
	done      bool
}

func newQuestionModel(questions []engine.Question) questionModel {
	m := questionModel{
		questions: questions,
		answers:   make(map[string]interface{}, len(questions)),
	}
	m.load()
	return m
}

// load prepares the current question.
func (m *questionModel) load() {
	q := m.current()
	m.errMsg = ""
	m.cursor = 0
	for i, o := range q.Options {
		if o == q.Default {
			m.cursor = i
		}
	}

	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 1024
	input.SetValue(q.Default)
	input.Focus()
	m.input = input
}

func (m questionModel) current() engine.Question {
	return m.questions[m.index]
}

func (m questionModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m questionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	q := m.current()
	switch keyMsg.String() {
	case "ctrl+c", "esc":
		m.aborted = true
		return m, tea.Quit
	case "enter":
		raw := strings.TrimSpace(m.input.Value())
		if len(q.Options) > 0 {
			raw = q.Options[m.cursor]
		}
		return m.answer(raw)
	}

	if len(q.Options) > 0 {
		switch keyMsg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(q.Options)-1 {
				m.cursor++
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// answer records raw for the current question and advances. An empty answer
// is recorded as empty; invalid answers keep the question open.
func (m questionModel) answer(raw string) (tea.Model, tea.Cmd) {
	q := m.current()

	var value interface{} = raw
	if raw != "" && q.Parse != nil {
		v, err := q.Parse(raw)
		if err != nil {
			m.errMsg = err.Error()
			return m, nil
		}
		value = v
	}
	m.answers[q.Name] = value

	if m.index == len(m.questions)-1 {
		m.done = true
		return m, tea.Quit
	}
	m.index++
	m.load()
	return m, nil
}

func (m questionModel) View() string {
	if m.done || m.aborted {
		return ""
	}

	q := m.current()
	var b strings.Builder
	b.WriteString(mutedStyle.Render(fmt.Sprintf("[%d/%d]", m.index+1, len(m.questions))))
	b.WriteString("\n")
	b.WriteString(promptStyle.Render(q.Prompt))
	b.WriteString("\n")

	if len(q.Options) > 0 {
		for i, o := range q.Options {
			if i == m.cursor {
				b.WriteString(selectedStyle.Render("> " + o))
			} else {
				b.WriteString("  " + o)
			}
			b.WriteString("\n")
		}
	} else {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}

	if m.errMsg != "" {
		b.WriteString(errorStyle.Render(m.errMsg))
		b.WriteString("\n")
	}
	b.WriteString(mutedStyle.Render("enter to confirm, esc to cancel"))
	return b.String()
}

var _ engine.Prompter = (*TerminalPrompter)(nil)
