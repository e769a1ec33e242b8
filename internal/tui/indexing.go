package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"coderag/internal/index"
)

type indexingModel struct {
	title   string
	spinner spinner.Model
	start   tea.Cmd
	cancel  context.CancelFunc

	phase     string
	processed int
	total     int
	done      bool
	cancelled bool
	summary   *index.Summary
	err       error
}

func newIndexingModel(title string, start tea.Cmd, cancel context.CancelFunc) indexingModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = selectedStyle
	return indexingModel{
		title:   title,
		spinner: sp,
		start:   start,
		cancel:  cancel,
		phase:   index.StageExtract,
	}
}

// indexDoneMsg is sent when the ingest returns.
type indexDoneMsg struct {
	summary *index.Summary
	err     error
}

// indexProgressMsg is sent as the ingest advances.
type indexProgressMsg struct {
	phase     string
	processed int
	total     int
}

func runIngest(ctx context.Context, fn IngestFunc, ref *programRef, results chan<- ingestResult) tea.Cmd {
	return func() tea.Msg {
		summary, err := fn(ctx, func(phase string, processed, total int) {
			ref.send(indexProgressMsg{phase: phase, processed: processed, total: total})
		})
		results <- ingestResult{summary: summary, err: err}
		return indexDoneMsg{summary: summary, err: err}
	}
}

func (m indexingModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start)
}

func (m indexingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.cancelled = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case indexDoneMsg:
		m.done = true
		m.summary = msg.summary
		m.err = msg.err
		return m, tea.Quit
	case indexProgressMsg:
		m.phase = msg.phase
		m.processed = msg.processed
		m.total = msg.total
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m indexingModel) View() string {
	var s strings.Builder
	s.WriteString("\n")
	s.WriteString(titleStyle.Render("  "+m.title) + "\n\n")

	switch {
	case m.cancelled:
		s.WriteString(warnStyle.Render("  Cancelled. The previous index is still live.") + "\n")
		return s.String()
	case m.done && m.err != nil:
		s.WriteString(errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)) + "\n")
		return s.String()
	case m.done:
		s.WriteString(successStyle.Render("  ✓ Ingest complete!") + "\n\n")
		if st := m.summary; st != nil {
			fmt.Fprintf(&s, "  Files: %d seen, %d chunked, %d skipped, %d failed\n",
				st.Stats.FilesSeen, st.Stats.FilesChunked, st.Stats.FilesSkipped, st.Stats.FilesFailed)
			fmt.Fprintf(&s, "  Chunks: %d (generation %d, %d dimensions)\n",
				st.ChunkCount, st.Generation, st.Dimension)
		}
		return s.String()
	}

	fmt.Fprintf(&s, "  %s %s\n", m.spinner.View(), m.phase)
	if m.total > 0 {
		fmt.Fprintf(&s, "  %d / %d\n", m.processed, m.total)
	}
	s.WriteString("\n")
	s.WriteString(dimStyle.Render("  This may take a while for large codebases... (ctrl+c to cancel)") + "\n")
	return s.String()
}
