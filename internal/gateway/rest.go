package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v62/github"

	"github.com/naka-gawa/collection-stats/internal/domain"
)

// fetchREST fetches one repository at a time: its metadata, then its latest commit.
func (g *GitHubGateway) fetchREST(ctx context.Context, repos []domain.RepoRef, etags map[string]string) (map[string]domain.RepoStats, error) {
	results := make(map[string]domain.RepoStats, len(repos))
	var lastErr error
	for i, ref := range repos {
		if i > 0 {
			if err := g.sleep(ctx, g.delay); err != nil {
				return results, err
			}
		}
		stats, err := g.fetchRepository(ctx, ref, etags[ref.Key()])
		if err != nil {
			g.logger.Warn("failed to fetch repository", "repo", ref.Key(), "error", err)
			lastErr = err
			continue
		}
		results[ref.Key()] = stats
	}
	return results, lastErr
}

// fetchRepository sends etag as If-None-Match when set. A 304 answer skips the commit lookup.
func (g *GitHubGateway) fetchRepository(ctx context.Context, ref domain.RepoRef, etag string) (domain.RepoStats, error) {
	g.logger.Debug("fetching repository over REST", "repo", ref.Key(), "etag", etag)
	req, err := g.restClient.NewRequest(http.MethodGet, fmt.Sprintf("repos/%v/%v", ref.Owner, ref.Repo), nil)
	if err != nil {
		return domain.RepoStats{}, fmt.Errorf("failed to build request for %s: %w", ref.Key(), err)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	repo := new(github.Repository)
	resp, err := g.restClient.Do(ctx, req, repo)
	if resp != nil && resp.StatusCode == http.StatusNotModified {
		g.logger.Debug("repository not modified since last fetch", "repo", ref.Key())
		return domain.RepoStats{ETag: etag, NotModified: true}, nil
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return domain.RepoStats{}, fmt.Errorf("repository %s not found (404)", ref.Key())
		}
		return domain.RepoStats{}, fmt.Errorf("failed to get repository %s: %w", ref.Key(), err)
	}
	stats := domain.RepoStats{
		Stars:      repo.GetStargazersCount(),
		IsArchived: repo.GetArchived(),
		ETag:       resp.Header.Get("ETag"),
	}

	if err := g.sleep(ctx, g.delay); err != nil {
		return domain.RepoStats{}, err
	}

	opts := &github.CommitsListOptions{ListOptions: github.ListOptions{PerPage: 1}}
	commits, resp, err := g.restClient.Repositories.ListCommits(ctx, ref.Owner, ref.Repo, opts)
	switch {
	case err != nil:
		// An empty repository answers 409; the stars are still valid.
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		g.logger.Debug("failed to fetch latest commit", "repo", ref.Key(), "status", status, "error", err)
	case len(commits) > 0:
		if date := commits[0].GetCommit().GetCommitter().GetDate(); !date.IsZero() {
			stats.LastContributed = formatTimestamp(date.Time)
		}
	}
	return stats, nil
}
