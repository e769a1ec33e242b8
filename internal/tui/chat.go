package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"coderag/internal/index"
	"coderag/internal/rag"
)

const chatHelp = "Commands:\n  /clear  - clear the transcript\n  /exit   - quit\n  /help   - show this help"

type entryKind int

const (
	entryUser entryKind = iota
	entryAnswer
	entryNotice
	entryError
	entrySystem
)

type chatEntry struct {
	kind    entryKind
	content string
	sources []string
}

type chatModel struct {
	ctx      context.Context
	cfg      ChatConfig
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	entries  []chatEntry
	asking   bool
	width    int
	ready    bool
}

// answerMsg is sent when a question has been answered.
type answerMsg struct {
	answer rag.Answer
	err    error
}

func newChatModel(ctx context.Context, cfg ChatConfig) chatModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = selectedStyle

	ti := textinput.New()
	ti.Placeholder = "Ask a question about " + cfg.TenantID + "..."
	ti.CharLimit = 2000
	ti.Focus()

	return chatModel{
		ctx:     ctx,
		cfg:     cfg,
		spinner: sp,
		input:   ti,
	}
}

func (m chatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *chatModel) resize(width, height int) {
	m.width = width

	// viewport, status bar and input line
	vpHeight := height - 3
	if vpHeight < 5 {
		vpHeight = 5
	}
	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.input.Width = width - 4

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-2),
	)
	if err == nil {
		m.renderer = r
	}
	m.ready = true
}

func ask(ctx context.Context, cfg ChatConfig, question string) tea.Cmd {
	return func() tea.Msg {
		ans, err := cfg.Asker.Ask(ctx, cfg.TenantID, question, cfg.K)
		return answerMsg{answer: ans, err: err}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case answerMsg:
		m.asking = false
		m.entries = append(m.entries, entryFor(msg.answer, msg.err))
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.asking {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.asking {
			return m, nil
		}
		if msg.Type == tea.KeyEnter {
			return m.submit()
		}
	}

	if !m.asking {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m chatModel) submit() (tea.Model, tea.Cmd) {
	question := strings.TrimSpace(m.input.Value())
	if question == "" {
		return m, nil
	}
	m.input.Reset()

	switch question {
	case "/exit", "/quit":
		return m, tea.Quit
	case "/clear":
		m.entries = nil
		m.refresh()
		return m, nil
	case "/help":
		m.entries = append(m.entries, chatEntry{kind: entrySystem, content: chatHelp})
		m.refresh()
		return m, nil
	}

	m.entries = append(m.entries, chatEntry{kind: entryUser, content: question})
	m.asking = true
	m.refresh()
	return m, tea.Batch(m.spinner.Tick, ask(m.ctx, m.cfg, question))
}

func entryFor(ans rag.Answer, err error) chatEntry {
	if err != nil {
		return chatEntry{kind: entryError, content: err.Error()}
	}
	if !ans.Generated {
		return chatEntry{kind: entryNotice, content: ans.Text}
	}
	return chatEntry{kind: entryAnswer, content: ans.Text, sources: sourcesOf(ans.Search.Hits)}
}

func sourcesOf(hits []index.Hit) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, fmt.Sprintf("%s:%d-%d %s", h.Record.FileName, h.Record.StartLine, h.Record.EndLine, h.Record.SymbolName))
	}
	return out
}

func (m *chatModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderEntries())
	m.viewport.GotoBottom()
}

func (m chatModel) renderMarkdown(content string) string {
	if m.renderer == nil {
		return assistantMsgStyle.Render(content)
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return assistantMsgStyle.Render(content)
	}
	return strings.TrimRight(rendered, "\n")
}

func (m chatModel) renderEntries() string {
	if len(m.entries) == 0 && !m.asking {
		return dimStyle.Render(fmt.Sprintf("Chatting with %s. Ask a question about the code.\n\n%s", m.cfg.TenantID, chatHelp))
	}

	var sb strings.Builder
	for _, e := range m.entries {
		switch e.kind {
		case entryUser:
			sb.WriteString(userMsgStyle.Render("You: ") + e.content + "\n\n")
		case entryAnswer:
			sb.WriteString(m.renderMarkdown(e.content) + "\n")
			if len(e.sources) > 0 {
				sb.WriteString(dimStyle.Render("Sources:\n  "+strings.Join(e.sources, "\n  ")) + "\n")
			}
			sb.WriteString("\n")
		case entryNotice:
			sb.WriteString(warnStyle.Render(e.content) + "\n\n")
		case entryError:
			sb.WriteString(errorStyle.Render("Error: "+e.content) + "\n\n")
		case entrySystem:
			sb.WriteString(dimStyle.Render(e.content) + "\n\n")
		}
	}
	if m.asking {
		sb.WriteString(m.spinner.View() + " " + dimStyle.Render("Searching and generating...") + "\n")
	}
	return sb.String()
}

func (m chatModel) View() string {
	if !m.ready {
		return ""
	}
	status := "idle"
	if m.asking {
		status = "answering..."
	}
	bar := statusBarStyle.
		Width(m.width).
		Render(fmt.Sprintf(" coderag chat • %s • %s", m.cfg.TenantID, status))

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.viewport.View(),
		bar,
		m.input.View(),
	)
}
