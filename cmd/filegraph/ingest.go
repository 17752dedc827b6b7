package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/helixml/filegraph/domain/batch"
	"github.com/helixml/filegraph/internal/log"
)

func ingestCmd(envFile *string) *cobra.Command {
	var (
		asJSON    bool
		performer string
	)

	cmd := &cobra.Command{
		Use:   "ingest <manifest.yaml | ->",
		Short: "Record a batch of files, entities and merges",
		Long: `Ingest reads a YAML manifest and records every item in one batch run.

Items without a digest are hashed from their path. Relative paths are
resolved against the manifest's directory. Merges may name entities by
canonical id or by name; names resolve to the id they would be created with.

Interrupting the run stops new work; items already recorded stay recorded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, baseDir, err := loadManifest(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			run, err := newManifestBuilder(baseDir, performer).Run(m)
			if err != nil {
				return err
			}

			client, _, closeClient, err := openClient(*envFile, os.Stderr)
			if err != nil {
				return err
			}
			defer closeClient()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = log.WithCorrelationID(ctx, uuid.NewString())

			report, runErr := client.Batch.Run(ctx, run)
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}
			ctx = log.WithRunID(ctx, report.RunID)
			log.Default().WithContext(ctx).Info("ingest finished",
				"organized", report.Organized,
				"skipped", report.Skipped,
				"errors", report.Errors,
			)

			out := cmd.OutOrStdout()
			if asJSON {
				err = writeReportJSON(out, report)
			} else {
				err = writeReport(out, report)
			}
			if err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().StringVar(&performer, "performed-by", "cli", "Recorded performer for merges without one")
	return cmd
}

func loadManifest(arg string, stdin io.Reader) (Manifest, string, error) {
	if arg == "-" {
		m, err := ReadManifest(stdin)
		if err != nil {
			return Manifest{}, "", err
		}
		wd, err := os.Getwd()
		return m, wd, err
	}

	f, err := os.Open(arg)
	if err != nil {
		return Manifest{}, "", fmt.Errorf("open manifest: %w", err)
	}
	defer func() { _ = f.Close() }()

	m, err := ReadManifest(f)
	if err != nil {
		return Manifest{}, "", fmt.Errorf("%s: %w", arg, err)
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return Manifest{}, "", err
	}
	return m, filepath.Dir(abs), nil
}

func writeReport(w io.Writer, r batch.Report) error {
	p := &printer{w: w}
	p.printf("run %s\n", r.RunID)
	p.printf("  organized %d  skipped %d  errors %d  (%s)\n",
		r.Organized, r.Skipped, r.Errors, r.Duration().Round(time.Millisecond))
	for _, o := range r.Outcomes {
		if o.Err != nil {
			p.printf("  error    %s: %v\n", o.Path, o.Err)
		}
	}
	for _, e := range r.Events {
		p.printf("  merged   %s into %s\n", strings.Join(e.Absorbed(), ", "), e.Survivor())
	}
	for _, item := range r.Reviews {
		p.printf("  review   %s (%s)\n", item.ID(), item.Kind())
	}
	for _, f := range r.Failed {
		p.printf("  failed   merge %s + %s: %v\n", f.Request.A, f.Request.B, f.Err)
	}
	if r.Cancelled {
		p.printf("  cancelled\n")
	}
	return p.err
}

type reportJSON struct {
	RunID      string        `json:"run_id"`
	Organized  int           `json:"organized"`
	Skipped    int           `json:"skipped"`
	Errors     int           `json:"errors"`
	Cancelled  bool          `json:"cancelled"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Outcomes   []outcomeJSON `json:"outcomes"`
	Merges     []string      `json:"merge_events"`
	Reviews    []string      `json:"reviews"`
	Failed     []failureJSON `json:"failed_merges"`
}

type outcomeJSON struct {
	Path        string `json:"path"`
	CanonicalID string `json:"canonical_id,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

type failureJSON struct {
	A     string `json:"a"`
	B     string `json:"b"`
	Error string `json:"error"`
}

func writeReportJSON(w io.Writer, r batch.Report) error {
	doc := reportJSON{
		RunID:      r.RunID,
		Organized:  r.Organized,
		Skipped:    r.Skipped,
		Errors:     r.Errors,
		Cancelled:  r.Cancelled,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Outcomes:   make([]outcomeJSON, 0, len(r.Outcomes)),
		Merges:     make([]string, 0, len(r.Events)),
		Reviews:    make([]string, 0, len(r.Reviews)),
		Failed:     make([]failureJSON, 0, len(r.Failed)),
	}
	for _, o := range r.Outcomes {
		oj := outcomeJSON{Path: o.Path, CanonicalID: o.CanonicalID, Status: string(o.Status)}
		if o.Err != nil {
			oj.Error = o.Err.Error()
		}
		doc.Outcomes = append(doc.Outcomes, oj)
	}
	for _, e := range r.Events {
		doc.Merges = append(doc.Merges, e.ID())
	}
	for _, item := range r.Reviews {
		doc.Reviews = append(doc.Reviews, item.ID())
	}
	for _, f := range r.Failed {
		doc.Failed = append(doc.Failed, failureJSON{A: f.Request.A, B: f.Request.B, Error: f.Err.Error()})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// printer keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
