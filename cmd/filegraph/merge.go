package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helixml/filegraph"
	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/merge"
)

func mergeCmd(envFile *string) *cobra.Command {
	var (
		survivor   string
		reason     string
		confidence float64
		performer  string
	)

	cmd := &cobra.Command{
		Use:   "merge <type> <a> <b>",
		Short: "Merge two entities of the same type",
		Long: `Merge records that two entities are the same real thing.

Entities are named by canonical id (urn:uuid:...) or by name. Without
--survivor the entity with more files survives. A confidence below the
auto-accept threshold queues the merge for review instead.`,
		Example: `  filegraph merge company "Acme Corp" "ACME Inc" --reason "same registration"
  filegraph merge person urn:uuid:... urn:uuid:... --confidence 0.7`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := graph.ParseEntityType(args[0])
			if err != nil {
				return err
			}
			b := newManifestBuilder("", performer)
			req, err := b.mergeRequest(ManifestMerge{
				EntityType: string(t),
				A:          args[1],
				B:          args[2],
				Survivor:   survivor,
				Reason:     reason,
				Confidence: &confidence,
			})
			if err != nil {
				return err
			}
			if err := req.Validate(); err != nil {
				return err
			}

			client, _, closeClient, err := openClient(*envFile, os.Stderr)
			if err != nil {
				return err
			}
			defer closeClient()

			return runMerge(cmd, client, req)
		},
	}

	cmd.Flags().StringVar(&survivor, "survivor", "", "Entity that survives (id or name)")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the entities are the same")
	cmd.Flags().Float64Var(&confidence, "confidence", 1.0, "Confidence in the merge, 0 to 1")
	cmd.Flags().StringVar(&performer, "performed-by", "cli", "Recorded performer")
	return cmd
}

func runMerge(cmd *cobra.Command, client *filegraph.Client, req merge.Request) error {
	p := &printer{w: cmd.OutOrStdout()}
	event, item, err := client.Merges.Request(cmd.Context(), req)
	switch {
	case errors.Is(err, filegraph.ErrQueuedForReview):
		p.printf("queued for review: %s (%s)\n", item.ID(), item.Kind())
		return p.err
	case err != nil:
		return fmt.Errorf("merge: %w", err)
	}
	p.printf("merge event %s\n", event.ID())
	p.printf("  survivor %s\n", event.Survivor())
	p.printf("  absorbed %s\n", strings.Join(event.Absorbed(), ", "))
	return p.err
}
