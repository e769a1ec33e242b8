package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"coderag/internal/index"
	"coderag/internal/tui"
)

var flagPlain bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <tenant> <path|git-url>",
	Short: "Build or rebuild a tenant's corpus from a source tree",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenantID, ref := args[0], args[1]
		ctx := cmd.Context()

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.indexer.Reserve(tenantID)
		if err != nil {
			return err
		}
		defer res.Release()

		tree, err := a.sources().Materialize(ctx, ref)
		if err != nil {
			return err
		}
		defer func() {
			if err := tree.Cleanup(); err != nil {
				a.logger.Warn("source cleanup failed", "root", tree.Root, "error", err)
			}
		}()

		if !flagPlain && isTerminal(os.Stdout) {
			_, err := tui.RunIngest(ctx, fmt.Sprintf("Ingesting %s into %s", ref, tenantID),
				func(ctx context.Context, progress index.ProgressFunc) (*index.Summary, error) {
					return res.Ingest(ctx, tree.Root, index.WithProgress(progress))
				})
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Ingesting %s into %s...\n", ref, tenantID)
		summary, err := res.Ingest(ctx, tree.Root, index.WithProgress(stageReporter(cmd.ErrOrStderr())))
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), summary)
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&flagPlain, "plain", false, "disable the progress view")
	rootCmd.AddCommand(ingestCmd)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// stageReporter prints each stage once, when it starts.
func stageReporter(w io.Writer) index.ProgressFunc {
	var last string
	return func(stage string, _, total int) {
		if stage == last {
			return
		}
		last = stage
		if total > 0 {
			fmt.Fprintf(w, "  %s (%d)\n", stage, total)
			return
		}
		fmt.Fprintf(w, "  %s\n", stage)
	}
}

func printSummary(w io.Writer, s *index.Summary) {
	fmt.Fprintf(w, "\nDone in %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Files:      %d seen, %d chunked, %d skipped, %d failed\n",
		s.Stats.FilesSeen, s.Stats.FilesChunked, s.Stats.FilesSkipped, s.Stats.FilesFailed)
	if s.Stats.ParseSkipped > 0 || s.Stats.WalkErrors > 0 {
		fmt.Fprintf(w, "  Fallbacks:  %d parse skipped, %d walk errors\n", s.Stats.ParseSkipped, s.Stats.WalkErrors)
	}
	fmt.Fprintf(w, "  Chunks:     %d\n", s.ChunkCount)
	fmt.Fprintf(w, "  Generation: %d (%s, %d dimensions)\n", s.Generation, s.Backend, s.Dimension)
}
