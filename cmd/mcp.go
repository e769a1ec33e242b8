package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"coderag/internal/index"
	"coderag/internal/rag"
	"coderag/internal/store"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing code search tools over stdio",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var asker *rag.Answerer
	switch answerer, err := a.answerer(); {
	case err == nil:
		asker = answerer
	case !errors.Is(err, errNoGenerator):
		return err
	}

	return mcpserver.ServeStdio(newMCPServer(a.indexer, asker))
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

type searcher interface {
	Search(ctx context.Context, tenantID, question string, k int) index.SearchResult
	Tenants(ctx context.Context) ([]store.Manifest, error)
}

type codeAsker interface {
	Ask(ctx context.Context, tenantID, question string, k int) (rag.Answer, error)
}

// newMCPServer registers ask_code only when an answer generator is available.
func newMCPServer(s searcher, a *rag.Answerer) *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer("coderag", "1.0.0", mcpserver.WithToolCapabilities(false))
	srv.AddTool(searchCodeTool(), makeSearchHandler(s))
	srv.AddTool(listTenantsTool(), makeListTenantsHandler(s))
	if a != nil {
		srv.AddTool(askCodeTool(), makeAskHandler(a))
	}
	return srv
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func searchCodeTool() mcp.Tool {
	return mcp.NewTool("search_code",
		mcp.WithDescription("Semantically search a tenant's indexed code. Returns the most similar chunks with file paths, symbols and line numbers."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("tenant_id",
			mcp.Required(),
			mcp.Description("Tenant whose corpus is searched"),
		),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Natural language question or description of the code"),
		),
		mcp.WithNumber("k",
			mcp.Description("Maximum number of chunks to return (default from server config)"),
		),
	)
}

func askCodeTool() mcp.Tool {
	return mcp.NewTool("ask_code",
		mcp.WithDescription("Answer a question about a tenant's code using retrieved chunks as the only context."),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{
			ReadOnlyHint:    mcp.ToBoolPtr(true),
			DestructiveHint: mcp.ToBoolPtr(false),
			IdempotentHint:  mcp.ToBoolPtr(false),
			OpenWorldHint:   mcp.ToBoolPtr(true),
		}),
		mcp.WithString("tenant_id",
			mcp.Required(),
			mcp.Description("Tenant whose corpus is searched"),
		),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Question about the code"),
		),
		mcp.WithNumber("k",
			mcp.Description("Number of chunks used as context (default from server config)"),
		),
	)
}

func listTenantsTool() mcp.Tool {
	return mcp.NewTool("list_tenants",
		mcp.WithDescription("List tenants with a live corpus, with generation, chunk count and embedding model."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	)
}

// --- Handler factories ---

func makeSearchHandler(s searcher) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tenantID := req.GetString("tenant_id", "")
		question := req.GetString("question", "")
		if tenantID == "" || question == "" {
			return mcp.NewToolResultError("tenant_id and question are required"), nil
		}

		res := s.Search(ctx, tenantID, question, req.GetInt("k", 0))
		if res.Status != index.StatusOK {
			return mcp.NewToolResultError(statusMessage(res)), nil
		}
		return mcp.NewToolResultText(formatSearchResults(question, res)), nil
	}
}

func makeAskHandler(a codeAsker) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tenantID := req.GetString("tenant_id", "")
		question := req.GetString("question", "")
		if tenantID == "" || question == "" {
			return mcp.NewToolResultError("tenant_id and question are required"), nil
		}

		ans, err := a.Ask(ctx, tenantID, question, req.GetInt("k", 0))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", err)), nil
		}
		if !ans.Generated {
			return mcp.NewToolResultText(ans.Text), nil
		}

		var sb strings.Builder
		sb.WriteString(ans.Text)
		sb.WriteString("\n\n**Sources:**\n")
		for _, h := range ans.Search.Hits {
			fmt.Fprintf(&sb, "- `%s` %s (lines %d–%d)\n", h.Record.FileName, h.Record.SymbolName, h.Record.StartLine, h.Record.EndLine)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func makeListTenantsHandler(s searcher) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		manifests, err := s.Tenants(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list tenants failed: %v", err)), nil
		}
		if len(manifests) == 0 {
			return mcp.NewToolResultText("No tenants have been ingested yet."), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "## Tenants (%d)\n\n", len(manifests))
		for _, m := range manifests {
			fmt.Fprintf(&sb, "- **%s**: generation %d, %d chunks, %s via %s, built %s\n",
				m.TenantID, m.Generation, m.ChunkCount, m.Model, m.Backend, m.BuiltAt.UTC().Format("2006-01-02 15:04 UTC"))
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

// --- Formatting helpers ---

func statusMessage(res index.SearchResult) string {
	switch res.Status {
	case index.StatusNotIndexed:
		return rag.MsgNotIndexed
	case index.StatusRebuildRequired:
		return rag.MsgRebuildRequired
	default:
		return rag.MsgUnavailable
	}
}

func formatSearchResults(question string, res index.SearchResult) string {
	if len(res.Hits) == 0 {
		return fmt.Sprintf("No results found for question: %q", question)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search results for %q (%d chunks)\n\n", question, len(res.Hits))
	for _, w := range res.Warnings {
		fmt.Fprintf(&sb, "> warning: %s\n\n", w)
	}

	for _, h := range res.Hits {
		r := h.Record
		fmt.Fprintf(&sb, "### Result %d: `%s`\n\n", h.Rank, r.FileName)
		fmt.Fprintf(&sb, "**Kind:** %s  \n**Name:** %s  \n**Lines:** %d–%d  \n**Score:** %.4f\n\n",
			r.Kind, r.SymbolName, r.StartLine, r.EndLine, h.Score)
		fmt.Fprintf(&sb, "```\n%s\n```\n\n", r.CodeSnippet)
	}
	return sb.String()
}
