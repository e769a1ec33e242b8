package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"coderag/internal/config"
	"coderag/internal/log"
)

var (
	flagConfig        string
	flagEnvFile       string
	flagDataDir       string
	flagDB            string
	flagLogLevel      string
	flagLogFormat     string
	flagEmbedProvider string
	flagEmbedURL      string
	flagModel         string
	flagChatProvider  string
	flagChatModel     string
	flagBackend       string
)

var rootCmd = &cobra.Command{
	Use:          "coderag",
	Short:        "Multi-tenant code search and question answering",
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "YAML config file")
	pf.StringVar(&flagEnvFile, "env-file", "", "dotenv file (default ./.env)")
	pf.StringVar(&flagDataDir, "data-dir", "", "directory for index files (default ~/.coderag)")
	pf.StringVar(&flagDB, "db", "", "metadata database: path, sqlite:///path or postgres://...")
	pf.StringVar(&flagLogLevel, "log-level", "", "DEBUG, INFO, WARN or ERROR")
	pf.StringVar(&flagLogFormat, "log-format", "", "text or json")
	pf.StringVar(&flagEmbedProvider, "embed-provider", "", "embedding provider: hash, ollama or openai")
	pf.StringVar(&flagEmbedURL, "embed-url", "", "embedding service base URL")
	pf.StringVar(&flagModel, "model", "", "embedding model")
	pf.StringVar(&flagChatProvider, "chat-provider", "", "answer generator: none, ollama or openai")
	pf.StringVar(&flagChatModel, "chat-model", "", "generative model for answers")
	pf.StringVar(&flagBackend, "backend", "", "vector index backend: flat or sqlite-vec")
}

// loadConfig layers command-line flags over the file and environment config
// and installs the logger.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(flagConfig, flagEnvFile)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	if flags.Changed("data-dir") && !flags.Changed("db") && cfg.DBURL == config.DefaultDBURL(cfg.DataDir) {
		cfg.DBURL = ""
	}
	set("data-dir", &cfg.DataDir, flagDataDir)
	set("db", &cfg.DBURL, flagDB)
	set("log-level", &cfg.LogLevel, flagLogLevel)
	set("log-format", &cfg.LogFormat, flagLogFormat)
	set("embed-provider", &cfg.Embedding.Provider, flagEmbedProvider)
	set("embed-url", &cfg.Embedding.BaseURL, flagEmbedURL)
	set("model", &cfg.Embedding.Model, flagModel)
	set("chat-provider", &cfg.Chat.Provider, flagChatProvider)
	set("chat-model", &cfg.Chat.Model, flagChatModel)
	set("backend", &cfg.Index.Backend, flagBackend)

	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	log.Configure(cfg.LogFormat, cfg.LogLevel)
	return cfg, nil
}
