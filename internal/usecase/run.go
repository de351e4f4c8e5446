package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/naka-gawa/collection-stats/internal/archive"
	"github.com/naka-gawa/collection-stats/internal/collection"
	"github.com/naka-gawa/collection-stats/internal/config"
	"github.com/naka-gawa/collection-stats/internal/domain"
	"github.com/naka-gawa/collection-stats/internal/gateway"
	"github.com/naka-gawa/collection-stats/internal/report"
	"github.com/naka-gawa/collection-stats/internal/store"
)

// Runner is the use case for one stats update run.
// It orchestrates loading the inputs, updating the collection and persisting every output.
type Runner struct {
	cfg     *config.Config
	fetcher gateway.Fetcher
	cache   store.CacheStore
	logger  *slog.Logger
	now     func() time.Time
	sleep   gateway.Sleeper
}

// NewRunner creates a new Runner instance.
func NewRunner(cfg *config.Config, fetcher gateway.Fetcher, cache store.CacheStore, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		fetcher: fetcher,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
		sleep:   gateway.SleepContext,
	}
}

// Run performs the update. Errors returned are fatal: a missing or malformed input file
// (reported before anything is mutated) or a failure to write an output file.
// Per-repository failures are logged and counted in the summary instead.
func (r *Runner) Run(ctx context.Context) (report.Summary, error) {
	r.logger.Info("Usecase: Starting stats update...")

	var (
		coll    *collection.Collection
		cache   domain.Cache
		tracker *archive.Tracker
	)
	// The inputs are independent and only read here.
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		coll, err = collection.Load(r.cfg.CollectionFile)
		return err
	})
	eg.Go(func() error {
		var err error
		cache, err = r.cache.Load(egCtx)
		if err != nil {
			r.logger.Warn("failed to load cache, starting with an empty cache", "error", err)
			cache = domain.Cache{}
		}
		r.logger.Debug("loaded cache", "entries", len(cache))
		return nil
	})
	eg.Go(func() error {
		var err error
		tracker, err = archive.Load(r.cfg.ArchivedFile)
		return err
	})
	if err := eg.Wait(); err != nil {
		return report.Summary{}, err
	}
	r.logger.Info("processing entries", "entries", len(coll.Entries))

	stats := NewStatsFetcher(r.fetcher, r.cfg.BatchSize, r.cfg.Delay(), r.logger)
	stats.sleep = r.sleep
	stats.now = r.now

	runDate := RunDate(r.now())
	summary, err := NewUpdater(stats, r.logger).Update(ctx, coll, cache, tracker, runDate)
	if err != nil {
		return summary, err
	}

	if err := r.cache.Save(ctx, cache); err != nil {
		r.logger.Warn("failed to save cache", "error", err)
	} else {
		r.logger.Debug("saved cache", "entries", len(cache))
	}

	report.Print(summary)
	if err := report.AppendStepSummary(r.cfg.StepSummary, summary); err != nil {
		r.logger.Warn("failed to append step summary", "error", err)
	}

	if err := coll.Save(r.cfg.CollectionFile); err != nil {
		return summary, fmt.Errorf("failed to write collection: %w", err)
	}
	r.logger.Info("successfully updated collection", "path", r.cfg.CollectionFile)

	if err := r.persistArchived(tracker, runDate); err != nil {
		return summary, err
	}

	r.logger.Info("Usecase: Stats update complete.")
	return summary, nil
}

func (r *Runner) persistArchived(tracker *archive.Tracker, runDate string) error {
	written, err := tracker.Save(r.cfg.ArchivedFile)
	if err != nil {
		return fmt.Errorf("failed to write archived repository list: %w", err)
	}
	if written {
		r.logger.Info("updated archived repository list", "path", r.cfg.ArchivedFile, "new", len(tracker.Staged()))
	}
	if err := tracker.WriteArtifact(r.cfg.ArtifactFile, runDate); err != nil {
		return fmt.Errorf("failed to write archived repository artifact: %w", err)
	}
	written, err = tracker.WriteIssueBody(r.cfg.IssueBodyFile, runDate)
	if err != nil {
		return err
	}
	if written {
		r.logger.Info("wrote issue body for newly archived repositories", "path", r.cfg.IssueBodyFile)
	}
	return nil
}
