package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/helixml/filegraph/infrastructure/api"
)

func stdioCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Start MCP server on stdio",
		Long: `Start the MCP (Model Context Protocol) server on stdio.

Assistants can look up files, resolve entities through merges, read merge
history and fetch statistics. Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, slogger, closeClient, err := openClient(*envFile, os.Stderr)
			if err != nil {
				return err
			}
			defer closeClient()

			slogger.Info("starting MCP server", slog.String("version", version), slog.String("data_dir", client.DataDir()))

			return api.NewAPIServer(client, api.WithVersion(version)).MCPServer().ServeStdio()
		},
	}
}
