// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/naka-gawa/collection-stats/internal/domain"
	"github.com/naka-gawa/collection-stats/internal/gateway"
)

// StatsFetcher fetches repository stats in chunks and falls back to the cache per repository.
type StatsFetcher struct {
	fetcher   gateway.Fetcher
	batchSize int
	delay     time.Duration
	sleep     gateway.Sleeper
	now       func() time.Time
	logger    *slog.Logger
}

// FetchReport is the outcome of one StatsFetcher.Fetch call.
type FetchReport struct {
	// Results holds fresh and cached results keyed by "owner/repo".
	Results map[string]domain.FetchResult
	// Missing lists repositories with neither a fresh result nor a usable cache record.
	Missing        []domain.RepoRef
	CacheFallbacks int
}

// NewStatsFetcher creates a new StatsFetcher instance.
func NewStatsFetcher(fetcher gateway.Fetcher, batchSize int, delay time.Duration, logger *slog.Logger) *StatsFetcher {
	return &StatsFetcher{
		fetcher:   fetcher,
		batchSize: batchSize,
		delay:     delay,
		sleep:     gateway.SleepContext,
		now:       time.Now,
		logger:    logger,
	}
}

// Fetch queries repos chunk by chunk. The cache is updated in place for every repository that
// returned fresh data. Only cancellation of ctx is reported as an error; everything else
// degrades to the cache.
func (f *StatsFetcher) Fetch(ctx context.Context, repos []domain.RepoRef, cache domain.Cache) (*FetchReport, error) {
	report := &FetchReport{Results: make(map[string]domain.FetchResult, len(repos))}
	repos = uniqueRefs(repos)

	for start := 0; start < len(repos); start += f.batchSize {
		if start > 0 {
			if err := f.sleep(ctx, f.delay); err != nil {
				return nil, err
			}
		}
		chunk := repos[start:min(start+f.batchSize, len(repos))]
		f.logger.Debug("fetching chunk", "offset", start, "size", len(chunk))

		fresh, err := f.fetcher.FetchRepositories(ctx, chunk, cache.ETags(chunk))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			if len(fresh) == 0 {
				f.logger.Warn("batch query failed, falling back to cache", "repos", len(chunk), "error", err)
			} else {
				f.logger.Warn("batch query returned partial data", "resolved", len(fresh), "repos", len(chunk), "error", err)
			}
		}

		for _, ref := range chunk {
			key := ref.Key()
			stats, ok := fresh[key]
			if !ok {
				f.fallback(report, ref, cache)
				continue
			}
			if stats.NotModified {
				f.notModified(report, ref, cache)
				continue
			}
			res := domain.FetchResult{
				Stars:           stats.Stars,
				LastContributed: stats.LastContributed,
				IsArchived:      stats.IsArchived,
				DataChanged:     changedSinceCache(cache[key], stats),
			}
			stars := stats.Stars
			cache[key] = domain.CacheRecord{
				Stars:           &stars,
				LastContributed: stats.LastContributed,
				ETag:            stats.ETag,
				UpdatedAt:       f.now().UTC().Format(time.RFC3339),
			}
			report.Results[key] = res
			f.logger.Info("fetched repository", "repo", key, "stars", res.Stars,
				"last_commit", deref(res.LastContributed), "archived", res.IsArchived, "changed", res.DataChanged)
		}
	}
	return report, nil
}

// notModified serves a 304 answer from the cache record it was validated against. The
// result counts as fresh data that did not change.
func (f *StatsFetcher) notModified(report *FetchReport, ref domain.RepoRef, cache domain.Cache) {
	key := ref.Key()
	res, ok := cache.Fallback(key)
	if !ok {
		f.logger.Warn("not modified but nothing cached", "repo", key)
		report.Missing = append(report.Missing, ref)
		return
	}
	res.FromCache = false
	rec := cache[key]
	rec.UpdatedAt = f.now().UTC().Format(time.RFC3339)
	cache[key] = rec
	report.Results[key] = res
	f.logger.Info("repository not modified, using cached data", "repo", key, "stars", res.Stars)
}

func (f *StatsFetcher) fallback(report *FetchReport, ref domain.RepoRef, cache domain.Cache) {
	key := ref.Key()
	if res, ok := cache.Fallback(key); ok {
		f.logger.Warn("no data for repository, using cached data", "repo", key)
		report.Results[key] = res
		report.CacheFallbacks++
		return
	}
	f.logger.Warn("no data for repository and nothing cached", "repo", key)
	report.Missing = append(report.Missing, ref)
}

// changedSinceCache compares fresh stats with the cache record, not with the collection.
func changedSinceCache(rec domain.CacheRecord, stats domain.RepoStats) bool {
	if rec.Stars == nil || *rec.Stars != stats.Stars {
		return true
	}
	return deref(rec.LastContributed) != deref(stats.LastContributed) ||
		(rec.LastContributed == nil) != (stats.LastContributed == nil)
}

func uniqueRefs(repos []domain.RepoRef) []domain.RepoRef {
	seen := make(map[string]bool, len(repos))
	out := make([]domain.RepoRef, 0, len(repos))
	for _, ref := range repos {
		if seen[ref.Key()] {
			continue
		}
		seen[ref.Key()] = true
		out = append(out, ref)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
