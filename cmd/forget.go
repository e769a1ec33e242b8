package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var forgetCmd = &cobra.Command{
	Use:   "forget <tenant>",
	Short: "Delete a tenant's corpus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.indexer.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed corpus for %s\n", args[0])
		return nil
	},
}

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "List tenants with a live corpus",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		manifests, err := a.indexer.Tenants(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TENANT\tGENERATION\tCHUNKS\tBACKEND\tMODEL\tBUILT")
		for _, m := range manifests {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n",
				m.TenantID, m.Generation, m.ChunkCount, m.Backend, m.Model, m.BuiltAt.Local().Format(time.DateTime))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(tenantsCmd)
}
