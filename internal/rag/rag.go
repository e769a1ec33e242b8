// Package rag answers questions about a tenant's code from retrieved chunks.
package rag

import (
	"context"
	"fmt"
	"strings"

	"coderag/internal/index"
	"coderag/internal/llm"
)

// Fixed answers for searches that produce no usable context.
const (
	MsgNotIndexed      = "No index found for this tenant. Please ingest a repository first."
	MsgRebuildRequired = "The index is corrupted. Please rebuild it by ingesting the repository again."
	MsgUnavailable     = "Search is unavailable right now. Please try again later."
	MsgNoResults       = "No relevant code found for your question."
)

const systemPrompt = `You are a highly accurate senior code assistant. You answer questions about a codebase using only the retrieved source code context provided below.

Rules:
- Start with the file name and the function or class name.
- Keep the explanation sharp and focused.
- Do not fabricate code or details that are missing from the context.
- If the context does not contain enough information to answer, say so.`

// Generator produces a response for a conversation.
type Generator interface {
	Generate(ctx context.Context, messages []llm.Message) (string, error)
}

// Searcher retrieves ranked chunks for a tenant.
type Searcher interface {
	Search(ctx context.Context, tenantID, question string, k int) index.SearchResult
}

// Answer is the result of Ask. Generated is false when Text is one of the
// fixed messages and no generator call was made.
type Answer struct {
	Text      string
	Generated bool
	Search    index.SearchResult
}

// Answerer retrieves context and asks the generator.
type Answerer struct {
	searcher  Searcher
	generator Generator
}

// NewAnswerer creates an Answerer.
func NewAnswerer(s Searcher, g Generator) *Answerer {
	return &Answerer{searcher: s, generator: g}
}

// Ask answers question for the tenant from its top-k chunks.
func (a *Answerer) Ask(ctx context.Context, tenantID, question string, k int) (Answer, error) {
	res := a.searcher.Search(ctx, tenantID, question, k)
	ans := Answer{Search: res}

	switch res.Status {
	case index.StatusNotIndexed:
		ans.Text = MsgNotIndexed
		return ans, nil
	case index.StatusRebuildRequired:
		ans.Text = MsgRebuildRequired
		return ans, nil
	case index.StatusUnavailable:
		ans.Text = MsgUnavailable
		return ans, nil
	}
	if len(res.Hits) == 0 {
		ans.Text = MsgNoResults
		return ans, nil
	}

	text, err := a.generator.Generate(ctx, BuildMessages(res.Hits, question))
	if err != nil {
		return ans, fmt.Errorf("generate answer: %w", err)
	}
	ans.Text = text
	ans.Generated = true
	return ans, nil
}

// BuildMessages constructs the message list for the LLM from retrieved hits
// and the question.
func BuildMessages(hits []index.Hit, question string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: "CODE CONTEXT:\n" + FormatContext(hits) + "\nQUESTION:\n" + question},
	}
}

// FormatContext renders hits in rank order as FILE / SYMBOL / LINES / CODE
// blocks.
func FormatContext(hits []index.Hit) string {
	var b strings.Builder
	for _, h := range hits {
		r := h.Record
		fmt.Fprintf(&b, "FILE: %s\n", r.FileName)
		fmt.Fprintf(&b, "SYMBOL: %s\n", r.SymbolName)
		fmt.Fprintf(&b, "LINES: %d-%d\n\n", r.StartLine, r.EndLine)
		b.WriteString("CODE:\n")
		b.WriteString(r.CodeSnippet)
		if !strings.HasSuffix(r.CodeSnippet, "\n") {
			b.WriteByte('\n')
		}
		b.WriteString("\n------------------------------------------\n")
	}
	return b.String()
}
