package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobleaser/internal/ingest"
	"github.com/kiranshivaraju/jobleaser/internal/sequence"
	"github.com/kiranshivaraju/jobleaser/internal/store"
	"github.com/kiranshivaraju/jobleaser/pkg/models"
	"github.com/urfave/cli/v3"
)

// JobImportAction loads a CSV or JSON file of jobs. The format follows the
// file extension.
func JobImportAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	importer := ingest.NewImporter(app.Store, sequence.NewAllocator(app.Store, nil), nil)
	return importFile(ctx, importer, out(cmd), cmd.String("file"))
}

// JobRequeueAction returns a Failed or ReLoginNeeded job to Ready.
func JobRequeueAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	return requeueJob(ctx, app.Store, out(cmd), cmd.String("id"))
}

// JobStatsAction prints job counts per status.
func JobStatsAction(ctx context.Context, cmd *cli.Command) error {
	app, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer app.Close()

	return jobStats(ctx, app.Store, out(cmd))
}

type importer interface {
	Import(ctx context.Context, records []ingest.Record) ([]*models.Job, error)
}

func importFile(ctx context.Context, imp importer, w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var records []ingest.Record
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = ingest.ParseCSV(f)
	case ".json":
		records, err = ingest.ParseJSON(f)
	default:
		return fmt.Errorf("unsupported file type %q, want .csv or .json", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	jobs, err := imp.Import(ctx, records)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "imported %d jobs\n", len(jobs))
	return nil
}

func requeueJob(ctx context.Context, jobs store.JobStore, w io.Writer, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid job id %q: %w", rawID, err)
	}
	ok, err := jobs.RequeueJob(ctx, id)
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	if !ok {
		return fmt.Errorf("job %s does not exist or is not Failed or ReLoginNeeded", id)
	}
	fmt.Fprintf(w, "job %s requeued\n", id)
	return nil
}

var statusOrder = []string{
	models.JobStatusReady,
	models.JobStatusAssigned,
	models.JobStatusSuccess,
	models.JobStatusFailed,
	models.JobStatusReLoginNeeded,
}

func jobStats(ctx context.Context, jobs store.JobStore, w io.Writer) error {
	counts, err := jobs.CountJobsByStatus(ctx)
	if err != nil {
		return fmt.Errorf("count jobs: %w", err)
	}
	total := 0
	for _, s := range statusOrder {
		fmt.Fprintf(w, "%-14s %d\n", s, counts[s])
		total += counts[s]
	}
	fmt.Fprintf(w, "%-14s %d\n", "Total", total)
	return nil
}
