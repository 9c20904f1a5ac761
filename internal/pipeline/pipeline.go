// Package pipeline runs one collect, select, format and write cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"ukmoviecal/internal/collect"
	"ukmoviecal/internal/config"
	"ukmoviecal/internal/ics"
	appLog "ukmoviecal/internal/log"
	"ukmoviecal/internal/model"
	"ukmoviecal/internal/selector"
)

// StdoutPath as Output writes the calendar to Options.Stdout.
const StdoutPath = "-"

// Options wires one run. Everything a run needs is passed in here.
type Options struct {
	Windows   []model.Window
	Collector collect.Collector
	// Enricher, when set, adds detail to the selected releases.
	Enricher  collect.Enricher
	Policy    selector.Policy
	Format    ics.Options

	Output string
	Stdout io.Writer
}

// BucketSummary reports one bucket of a run.
type BucketSummary struct {
	Key       string `json:"key"`
	Collected int    `json:"collected"`
	Selected  int    `json:"selected"`
}

// Result summarizes a successful run.
type Result struct {
	Buckets   []BucketSummary `json:"buckets"`
	Events    int             `json:"events"`
	Output    string          `json:"output"`
	StartedAt time.Time       `json:"started_at"`
	Duration  time.Duration   `json:"duration"`
}

// Run executes the pipeline. Nothing is written unless every stage
// succeeds.
func Run(ctx context.Context, opts Options) (Result, error) {
	res := Result{StartedAt: time.Now(), Output: opts.Output}

	if opts.Collector == nil {
		return res, errors.New("pipeline: collector is nil")
	}
	if opts.Policy == nil {
		return res, errors.New("pipeline: selection policy is nil")
	}
	if opts.Output == "" {
		return res, errors.New("pipeline: output path is empty")
	}

	buckets := make([]model.Bucket, 0, len(opts.Windows))
	for _, w := range opts.Windows {
		releases, err := opts.Collector.Collect(ctx, w)
		if err != nil {
			return res, fmt.Errorf("pipeline: collect %s: %w", w.Key, err)
		}
		buckets = append(buckets, model.Bucket{Window: w, Releases: releases})
	}

	selected := selector.SelectBuckets(buckets, opts.Policy)
	for i, b := range selected {
		res.Buckets = append(res.Buckets, BucketSummary{
			Key:       b.Window.Key,
			Collected: len(buckets[i].Releases),
			Selected:  len(b.Releases),
		})
		appLog.Info("bucket selected", "bucket", b.Window.Key, "collected", len(buckets[i].Releases), "selected", len(b.Releases))
	}

	releases := ics.Merge(selected)

	if opts.Enricher != nil && len(releases) > 0 {
		enriched, err := opts.Enricher.Enrich(ctx, releases)
		if err != nil {
			return res, fmt.Errorf("pipeline: enrich: %w", err)
		}
		releases = enriched
	}

	doc, events, err := ics.Format(releases, opts.Format)
	if err != nil {
		return res, fmt.Errorf("pipeline: format: %w", err)
	}
	if err := ics.Verify(doc, events); err != nil {
		return res, fmt.Errorf("pipeline: %w", err)
	}

	if err := writeOutput(opts, doc); err != nil {
		return res, fmt.Errorf("pipeline: write %s: %w", opts.Output, err)
	}

	res.Events = len(events)
	res.Duration = time.Since(res.StartedAt)
	appLog.Info("calendar written", "output", opts.Output, "events", res.Events, "duration", res.Duration.Round(time.Millisecond))
	return res, nil
}

func writeOutput(opts Options, doc []byte) error {
	if opts.Output == StdoutPath {
		w := opts.Stdout
		if w == nil {
			w = os.Stdout
		}
		_, err := w.Write(doc)
		return err
	}
	return config.WriteFileAtomic(opts.Output, doc, 0o644)
}
