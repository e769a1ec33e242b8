package cmd

import (
	"github.com/spf13/cobra"

	"coderag/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat <tenant>",
	Short: "Ask questions about a tenant's code interactively",
	Args:  cobra.ExactArgs(1),
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

		return tui.RunChat(cmd.Context(), tui.ChatConfig{
			TenantID: args[0],
			Asker:    answerer,
			K:        flagK,
		})
	},
}

func init() {
	chatCmd.Flags().IntVar(&flagK, "k", 0, "number of chunks retrieved per question (default from config)")
	rootCmd.AddCommand(chatCmd)
}
