package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/naka-gawa/collection-stats/internal/archive"
	"github.com/naka-gawa/collection-stats/internal/collection"
	"github.com/naka-gawa/collection-stats/internal/domain"
	"github.com/naka-gawa/collection-stats/internal/report"
)

// Updater merges fetched stats into the collection entries and stages archived repositories.
type Updater struct {
	stats  *StatsFetcher
	logger *slog.Logger
}

// NewUpdater creates a new Updater instance.
func NewUpdater(stats *StatsFetcher, logger *slog.Logger) *Updater {
	return &Updater{stats: stats, logger: logger}
}

// Update mutates coll and cache in memory and stages newly archived repositories on tracker.
// Nothing is written to disk here.
//
// Every entry with a valid badge counts as processed and ends up in exactly one of Updated,
// Unchanged or Errors. An entry counts as an error when its repository returned no data and
// had no cache record to fall back to.
func (u *Updater) Update(ctx context.Context, coll *collection.Collection, cache domain.Cache, tracker *archive.Tracker, runDate string) (report.Summary, error) {
	var summary report.Summary

	var refs []domain.RepoRef
	entriesByKey := make(map[string][]int)
	for i := range coll.Entries {
		if !coll.IsObject(i) {
			continue
		}
		badge, ok := coll.Badge(i)
		if !ok {
			continue
		}
		ref, ok := collection.ParseBadge(badge)
		if !ok {
			u.logger.Warn("invalid badge format", "badge", badge, "entry", i, "name", coll.Name(i))
			summary.Skipped++
			continue
		}
		summary.Processed++
		if _, seen := entriesByKey[ref.Key()]; !seen {
			refs = append(refs, ref)
		}
		entriesByKey[ref.Key()] = append(entriesByKey[ref.Key()], i)
	}
	u.logger.Info("found repositories to update", "repos", len(refs), "entries", summary.Processed)

	fetched, err := u.stats.Fetch(ctx, refs, cache)
	if err != nil {
		return summary, err
	}
	summary.CacheFallbacks = fetched.CacheFallbacks

	for _, ref := range refs {
		key := ref.Key()
		indexes := entriesByKey[key]
		res, ok := fetched.Results[key]
		if !ok {
			summary.Errors += len(indexes)
			continue
		}
		for _, i := range indexes {
			changed, err := applyResult(coll, i, res)
			if err != nil {
				return summary, err
			}
			if changed {
				summary.Updated++
			} else {
				summary.Unchanged++
			}
			summary.Stars = append(summary.Stars, float64(res.Stars))
		}
		if res.IsArchived && tracker.Stage(ref, coll.Name(indexes[0]), runDate) {
			u.logger.Warn("repository is archived upstream", "repo", key)
			summary.NewArchived++
		}
	}
	return summary, nil
}

// applyResult writes res into entry i and reports whether the entry changed.
func applyResult(coll *collection.Collection, i int, res domain.FetchResult) (bool, error) {
	oldStars, hadStars := coll.Stars(i)
	oldLast, hadLast := coll.LastContributed(i)

	if err := coll.SetStats(i, res.Stars, res.LastContributed); err != nil {
		return false, err
	}

	changed := !hadStars || oldStars != res.Stars
	if res.LastContributed != nil && (!hadLast || oldLast != *res.LastContributed) {
		changed = true
	}
	return changed, nil
}

// RunDate formats t as the date stamped on archived records and artifacts.
func RunDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
