package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func statsCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print graph and key-value store statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, closeClient, err := openClient(*envFile, os.Stderr)
			if err != nil {
				return err
			}
			defer closeClient()

			agg, err := client.Stats.Aggregate(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(agg)
		},
	}
}
