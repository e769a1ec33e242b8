package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <tenant> <question>",
	Short: "Answer a question from a tenant's code",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		answerer, err := a.answerer()
		if err != nil {
			return err
		}

		ans, err := answerer.Ask(cmd.Context(), args[0], strings.Join(args[1:], " "), flagK)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !ans.Generated {
			fmt.Fprintln(out, ans.Text)
			return nil
		}
		fmt.Fprintln(out, render(ans.Text))
		fmt.Fprintln(out, "Sources:")
		for _, h := range ans.Search.Hits {
			fmt.Fprintf(out, "  %s:%d-%d %s\n", h.Record.FileName, h.Record.StartLine, h.Record.EndLine, h.Record.SymbolName)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().IntVar(&flagK, "k", 0, "number of chunks used as context (default from config)")
	rootCmd.AddCommand(askCmd)
}

// render formats markdown for the terminal; piped output is left raw.
func render(md string) string {
	if !isTerminal(os.Stdout) {
		return md
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}
