// Package tui holds the terminal views: ingest progress and interactive chat.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"coderag/internal/index"
	"coderag/internal/rag"
)

// programRef is an indirect pointer to the tea.Program so background goroutines
// can send messages. It must be set after tea.NewProgram returns but before Run.
type programRef struct {
	p *tea.Program
}

func (r *programRef) send(msg tea.Msg) {
	if r != nil && r.p != nil {
		r.p.Send(msg)
	}
}

// IngestFunc runs one ingest, reporting progress through the given callback.
type IngestFunc func(ctx context.Context, progress index.ProgressFunc) (*index.Summary, error)

type ingestResult struct {
	summary *index.Summary
	err     error
}

// RunIngest shows a progress view while fn runs. Ctrl+C cancels the ingest;
// the previous corpus stays live in that case.
func RunIngest(ctx context.Context, title string, fn IngestFunc) (*index.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ref := &programRef{}
	results := make(chan ingestResult, 1)
	model := newIndexingModel(title, runIngest(ctx, fn, ref, results), cancel)

	p := tea.NewProgram(model, tea.WithContext(ctx))
	ref.p = p
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		cancel()
		<-results
		return nil, err
	}

	// The ingest owns the corpus until it returns, even after the view exits.
	cancel()
	res := <-results
	return res.summary, res.err
}

// Asker answers questions about a tenant's code.
type Asker interface {
	Ask(ctx context.Context, tenantID, question string, k int) (rag.Answer, error)
}

// ChatConfig configures an interactive chat session.
type ChatConfig struct {
	TenantID string
	Asker    Asker
	K        int
}

// RunChat starts an interactive question loop for one tenant.
func RunChat(ctx context.Context, cfg ChatConfig) error {
	p := tea.NewProgram(newChatModel(ctx, cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
