package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"coderag/internal/api"
	"coderag/internal/source"
)

var (
	flagAddr         string
	flagAllowedRoots []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve ingestion, search and answers over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := a.cfg.HTTPAddr
		if cmd.Flags().Changed("addr") {
			addr = flagAddr
		}

		roots := a.cfg.API.AllowedRoots
		if cmd.Flags().Changed("allowed-root") {
			roots = flagAllowedRoots
		}
		if len(roots) == 0 {
			a.logger.Info("local ingest sources disabled; only git remotes are accepted over HTTP")
		}

		var asker api.Asker
		switch answerer, err := a.answerer(); {
		case err == nil:
			asker = answerer
		case errors.Is(err, errNoGenerator):
			a.logger.Info("answer generation disabled; /query will return 501")
		default:
			return err
		}

		srv := api.NewServer(addr, a.indexer, a.sources(), asker, a.logger,
			api.WithSourcePolicy(source.Policy{Roots: roots}))
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-cmd.Context().Done():
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().StringSliceVar(&flagAllowedRoots, "allowed-root", nil, "directory clients may ingest local sources from (repeatable)")
	rootCmd.AddCommand(serveCmd)
}
