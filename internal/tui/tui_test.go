package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderag/internal/index"
	"coderag/internal/rag"
	"coderag/internal/store"
)

func TestRunIngestCmd_ReportsProgressAndResult(t *testing.T) {
	results := make(chan ingestResult, 1)
	want := &index.Summary{TenantID: "acme", ChunkCount: 3}

	cmd := runIngest(context.Background(), func(_ context.Context, progress index.ProgressFunc) (*index.Summary, error) {
		progress(index.StageEmbed, 1, 3)
		return want, nil
	}, &programRef{}, results)

	msg := cmd()
	done, ok := msg.(indexDoneMsg)
	require.True(t, ok)
	assert.Same(t, want, done.summary)
	assert.NoError(t, done.err)

	res := <-results
	assert.Same(t, want, res.summary)
}

func TestIndexingModel_Update(t *testing.T) {
	cancelled := false
	m := newIndexingModel("Ingesting", nil, func() { cancelled = true })

	next, _ := m.Update(indexProgressMsg{phase: index.StageEmbed, processed: 2, total: 5})
	m = next.(indexingModel)
	assert.Contains(t, m.View(), index.StageEmbed)
	assert.Contains(t, m.View(), "2 / 5")

	next, cmd := m.Update(indexDoneMsg{summary: &index.Summary{ChunkCount: 7, Generation: 2}})
	m = next.(indexingModel)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), "Chunks: 7 (generation 2")
	assert.False(t, cancelled)

	m = newIndexingModel("Ingesting", nil, func() { cancelled = true })
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, cancelled)
	assert.Contains(t, next.View(), "Cancelled")

	m = newIndexingModel("Ingesting", nil, nil)
	next, _ = m.Update(indexDoneMsg{err: errors.New("embedding service down")})
	assert.Contains(t, next.View(), "embedding service down")
}

func TestEntryFor(t *testing.T) {
	e := entryFor(rag.Answer{Text: rag.MsgNotIndexed}, nil)
	assert.Equal(t, entryNotice, e.kind)

	e = entryFor(rag.Answer{}, errors.New("boom"))
	assert.Equal(t, entryError, e.kind)
	assert.Equal(t, "boom", e.content)

	e = entryFor(rag.Answer{
		Text:      "It greets.",
		Generated: true,
		Search: index.SearchResult{Hits: []index.Hit{{
			Record: store.Record{FileName: "app.py", SymbolName: "greet", StartLine: 1, EndLine: 2},
		}}},
	}, nil)
	assert.Equal(t, entryAnswer, e.kind)
	assert.Equal(t, []string{"app.py:1-2 greet"}, e.sources)
}

type stubAsker struct{ question string }

func (s *stubAsker) Ask(_ context.Context, _, question string, _ int) (rag.Answer, error) {
	s.question = question
	return rag.Answer{Text: "**bold**", Generated: true}, nil
}

func TestChatModel_SubmitAndCommands(t *testing.T) {
	asker := &stubAsker{}
	var m tea.Model = newChatModel(context.Background(), ChatConfig{TenantID: "acme", Asker: asker})
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	m = typeLine(t, m, "/help")
	assert.Len(t, m.(chatModel).entries, 1)

	m = typeLine(t, m, "/clear")
	assert.Empty(t, m.(chatModel).entries)

	for _, r := range "what is greet?" {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.(chatModel).asking)

	m, _ = m.Update(ask(context.Background(), m.(chatModel).cfg, "what is greet?")())
	cm := m.(chatModel)
	assert.False(t, cm.asking)
	assert.Equal(t, "what is greet?", asker.question)
	require.Len(t, cm.entries, 2)
	assert.Equal(t, entryUser, cm.entries[0].kind)
	assert.Equal(t, entryAnswer, cm.entries[1].kind)
}

func typeLine(t *testing.T, m tea.Model, line string) tea.Model {
	t.Helper()
	for _, r := range line {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return m
}
