package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"coderag/internal/index"
)

var flagK int

var searchCmd = &cobra.Command{
	Use:   "search <tenant> <question>",
	Short: "Retrieve the chunks most similar to a question",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res := a.indexer.Search(cmd.Context(), args[0], strings.Join(args[1:], " "), flagK)
		printSearchResult(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVar(&flagK, "k", 0, "number of chunks to return (default from config)")
	rootCmd.AddCommand(searchCmd)
}

func printSearchResult(w io.Writer, res index.SearchResult) {
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	switch res.Status {
	case index.StatusOK:
	case index.StatusNotIndexed:
		fmt.Fprintf(w, "Tenant %q has no corpus. Run 'coderag ingest %s <path>' first.\n", res.TenantID, res.TenantID)
		return
	default:
		fmt.Fprintf(w, "Search %s: %s\n", res.Status, res.Reason)
		return
	}
	if len(res.Hits) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}

	for _, h := range res.Hits {
		r := h.Record
		fmt.Fprintf(w, "#%d  %.4f  %s:%d-%d  %s %s\n", h.Rank, h.Score, r.FileName, r.StartLine, r.EndLine, r.Kind, r.SymbolName)
		for _, line := range strings.Split(strings.TrimRight(r.CodeSnippet, "\n"), "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
		fmt.Fprintln(w)
	}
}
