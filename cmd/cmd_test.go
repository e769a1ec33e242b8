package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderag/internal/config"
	"coderag/internal/index"
	"coderag/internal/llm"
	"coderag/internal/log"
	"coderag/internal/rag"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Embedding.Provider = "hash"
	cfg.Embedding.Dimension = 64
	cfg.Chat.Provider = "none"
	cfg.Chunking.Languages = []string{"python"}
	cfg = cfg.Normalize()
	require.NoError(t, cfg.Validate())
	return cfg
}

func testApp(t *testing.T) *app {
	t.Helper()
	a, err := newApp(context.Background(), testConfig(t), log.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func ingestFixture(t *testing.T, a *app, tenantID string) *index.Summary {
	t.Helper()
	root := t.TempDir()
	src := "def greet(who):\n    print(\"hello\", who)\n\n\nclass Greeter:\n    def hello(self):\n        greet(\"world\")\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.py"), []byte(src), 0o644))

	summary, err := a.indexer.Ingest(context.Background(), tenantID, root)
	require.NoError(t, err)
	return summary
}

type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	res, err := h(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Arguments: args},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	var out toolResult
	require.NoError(t, json.Unmarshal(raw, &out))
	require.NotEmpty(t, out.Content)
	return out.Content[0].Text, out.IsError
}

type cannedGenerator struct{}

func (cannedGenerator) Generate(_ context.Context, messages []llm.Message) (string, error) {
	return fmt.Sprintf("the answer (%d messages)", len(messages)), nil
}

func TestNewApp_WiresConfiguredComponents(t *testing.T) {
	a := testApp(t)

	summary := ingestFixture(t, a, "acme")
	assert.Equal(t, 4, summary.ChunkCount)
	assert.Equal(t, 64, summary.Dimension)
	assert.Equal(t, "flat", summary.Backend)

	_, err := os.Stat(filepath.Join(a.cfg.DataDir, "coderag.db"))
	assert.NoError(t, err)

	_, err = a.answerer()
	assert.ErrorIs(t, err, errNoGenerator)
}

func TestNewApp_SQLiteVecBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Index.Backend = "sqlite-vec"
	a, err := newApp(context.Background(), cfg, log.Discard())
	require.NoError(t, err)
	defer a.Close()

	summary := ingestFixture(t, a, "acme")
	assert.Equal(t, "sqlite-vec", summary.Backend)

	res := a.indexer.Search(context.Background(), "acme", "greet", 2)
	assert.Equal(t, index.StatusOK, res.Status)
	assert.Len(t, res.Hits, 2)
}

func TestNewGenerator(t *testing.T) {
	g, err := newGenerator(config.ChatConfig{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &llm.OllamaChat{}, g)

	g, err = newGenerator(config.ChatConfig{Provider: "openai", APIKey: "k", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &llm.OpenAIChat{}, g)

	_, err = newGenerator(config.ChatConfig{Provider: "bogus"})
	assert.ErrorIs(t, err, config.ErrInvalidProvider)
}

func TestMCPSearchCode(t *testing.T) {
	a := testApp(t)
	ingestFixture(t, a, "acme")
	h := makeSearchHandler(a.indexer)

	text, isErr := callTool(t, h, map[string]any{"tenant_id": "acme", "question": "greet someone", "k": 2})
	assert.False(t, isErr)
	assert.Contains(t, text, "(2 chunks)")
	assert.Contains(t, text, "`app.py`")

	text, isErr = callTool(t, h, map[string]any{"tenant_id": "nobody", "question": "greet"})
	assert.True(t, isErr)
	assert.Equal(t, rag.MsgNotIndexed, text)

	_, isErr = callTool(t, h, map[string]any{"tenant_id": "acme"})
	assert.True(t, isErr)
}

func TestMCPAskCode(t *testing.T) {
	a := testApp(t)
	ingestFixture(t, a, "acme")
	h := makeAskHandler(rag.NewAnswerer(a.indexer, cannedGenerator{}))

	text, isErr := callTool(t, h, map[string]any{"tenant_id": "acme", "question": "how do we greet?"})
	assert.False(t, isErr)
	assert.Contains(t, text, "the answer (2 messages)")
	assert.Contains(t, text, "**Sources:**")

	text, isErr = callTool(t, h, map[string]any{"tenant_id": "nobody", "question": "how do we greet?"})
	assert.False(t, isErr)
	assert.Equal(t, rag.MsgNotIndexed, text)
}

func TestMCPListTenants(t *testing.T) {
	a := testApp(t)
	h := makeListTenantsHandler(a.indexer)

	text, _ := callTool(t, h, nil)
	assert.Equal(t, "No tenants have been ingested yet.", text)

	ingestFixture(t, a, "acme")
	ingestFixture(t, a, "beta")
	text, isErr := callTool(t, h, nil)
	assert.False(t, isErr)
	assert.Contains(t, text, "## Tenants (2)")
	assert.Contains(t, text, "**acme**: generation 1, 4 chunks")
	assert.Contains(t, text, "**beta**")
}

func TestPrintSearchResult(t *testing.T) {
	a := testApp(t)
	ingestFixture(t, a, "acme")

	var buf bytes.Buffer
	printSearchResult(&buf, a.indexer.Search(context.Background(), "acme", "Greeter hello", 1))
	assert.Contains(t, buf.String(), "#1 ")
	assert.Contains(t, buf.String(), "app.py:")

	buf.Reset()
	printSearchResult(&buf, a.indexer.Search(context.Background(), "ghost", "anything", 1))
	assert.Contains(t, buf.String(), `Tenant "ghost" has no corpus`)
}

func TestStageReporter(t *testing.T) {
	var buf bytes.Buffer
	report := stageReporter(&buf)
	report(index.StageExtract, 0, 0)
	report(index.StageExtract, 1, 0)
	report(index.StageEmbed, 0, 4)
	report(index.StageEmbed, 4, 4)
	assert.Equal(t, "  "+index.StageExtract+"\n  "+index.StageEmbed+" (4)\n", buf.String())
}
