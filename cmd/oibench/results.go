package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/btouchard/oibench/internal/store"
)

func cmdResults(args []string) {
	fs := flag.NewFlagSet("results", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	batchID := fs.String("batch", "", "batch id to show; lists recent batches when empty")
	limit := fs.Int("limit", 20, "number of batches to list")
	events := fs.Bool("events", false, "show the lifecycle events of the batch instead of its results")
	_ = fs.Parse(args) // ExitOnError handles errors

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening database: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	switch {
	case *batchID == "":
		err = listBatches(ctx, os.Stdout, db, *limit)
	case *events:
		err = showEvents(ctx, os.Stdout, db, *batchID)
	default:
		err = showResults(ctx, os.Stdout, db, *batchID)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func listBatches(ctx context.Context, w io.Writer, s store.Store, limit int) error {
	batches, err := s.ListBatches(ctx, limit)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		_, err := fmt.Fprintln(w, "no batches recorded")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BATCH\tCREATED\tMODEL\tTASKS\tDONE\tCORRECT\tFINISHED")
	for _, b := range batches {
		finished := "-"
		if !b.FinishedAt.IsZero() {
			finished = b.FinishedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			b.ID, b.CreatedAt.Local().Format(time.DateTime), b.Command.Model,
			b.TaskCount, b.Completed, b.Correct, finished)
	}
	return tw.Flush()
}

func showResults(ctx context.Context, w io.Writer, s store.Store, batchID string) error {
	if _, err := s.GetBatch(ctx, batchID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("batch %s not found", batchID)
		}
		return err
	}

	results, err := s.ListResults(ctx, batchID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func showEvents(ctx context.Context, w io.Writer, s store.Store, batchID string) error {
	events, err := s.GetEvents(ctx, batchID, "", 0)
	if err != nil {
		return err
	}
	slices.Reverse(events)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tTASK\tEVENT\tMESSAGE")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.TimeOnly), e.TaskID, e.EventType, e.Message)
	}
	return tw.Flush()
}
