// Command filegraph serves and maintains a filegraph identity graph: the
// HTTP API, an MCP server on stdio, manifest ingestion, manual merges and
// the auxiliary key-value store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/helixml/filegraph/internal/config"
)

// Set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:           "filegraph",
		Short:         "File identity graph",
		Long:          `filegraph keeps stable identities for files and the categories, companies, people and locations they mention, and merges duplicate entities without reassigning ids.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")

	cmd.AddCommand(serveCmd(&envFile))
	cmd.AddCommand(stdioCmd(&envFile))
	cmd.AddCommand(ingestCmd(&envFile))
	cmd.AddCommand(mergeCmd(&envFile))
	cmd.AddCommand(statsCmd(&envFile))
	cmd.AddCommand(kvCmd(&envFile))
	cmd.AddCommand(versionCmd())

	return cmd
}

// loadConfig loads configuration from .env file and environment variables.
func loadConfig(envFile string) (config.AppConfig, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
