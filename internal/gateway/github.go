// Package gateway provides a gateway to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/naka-gawa/collection-stats/internal/config"
	"github.com/naka-gawa/collection-stats/internal/domain"
)

// Fetcher defines the behavior of a gateway for fetching repository stats from GitHub.
type Fetcher interface {
	// FetchRepositories returns the stats of every repository that resolved, keyed by
	// "owner/repo". Repositories that did not resolve are absent. A non-nil error reports a
	// request-level failure and may accompany partial results.
	//
	// etags maps "owner/repo" to a cached ETag. Fetchers that support conditional requests
	// report a match as RepoStats.NotModified.
	FetchRepositories(ctx context.Context, repos []domain.RepoRef, etags map[string]string) (map[string]domain.RepoStats, error)
}

// GitHubGateway is the concrete implementation of the Fetcher interface.
type GitHubGateway struct {
	restClient    *github.Client
	graphqlClient *githubv4.Client
	useGraphQL    bool
	delay         time.Duration
	sleep         Sleeper
	logger        *slog.Logger
}

// repositoryNode is the per-repository selection of the batched query.
type repositoryNode struct {
	StargazerCount   int
	IsArchived       bool
	DefaultBranchRef *struct {
		Target *struct {
			Commit struct {
				CommittedDate githubv4.DateTime
			} `graphql:"... on Commit"`
		}
	}
}

var repositoryNodeType = reflect.TypeOf(&repositoryNode{})

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway.
func NewGitHubGateway(cfg *config.Config, logger *slog.Logger) (Fetcher, error) {
	if cfg.Token != "" {
		logger.Info("using authenticated GitHub API requests")
	} else {
		logger.Info("using unauthenticated GitHub API requests (lower rate limits)")
	}

	if cfg.UseGraphQL {
		logger.Info("fetching repositories with batched GraphQL queries", "batch_size", cfg.BatchSize)
	} else {
		logger.Info("fetching repositories one by one over REST", "authenticated", cfg.Token != "")
	}

	// GraphQL and REST share one transport stack.
	httpClient := NewHTTPClient(cfg, baseTransport(cfg.RequestTimeout), logger)

	restClient := github.NewClient(httpClient)
	apiURL := cfg.APIURL
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	baseURL, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub API URL %q: %w", cfg.APIURL, err)
	}
	restClient.BaseURL = baseURL

	return &GitHubGateway{
		restClient:    restClient,
		graphqlClient: githubv4.NewEnterpriseClient(cfg.GraphQLURL, httpClient),
		useGraphQL:    cfg.UseGraphQL,
		delay:         cfg.Delay(),
		sleep:         SleepContext,
		logger:        logger,
	}, nil
}

// NewHTTPClient stacks the retry transport over the bearer token transport over base.
// The token transport is skipped for unauthenticated runs.
func NewHTTPClient(cfg *config.Config, base http.RoundTripper, logger *slog.Logger) *http.Client {
	if cfg.Token != "" {
		base = &oauth2.Transport{
			Base:   base,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
		}
	}
	return &http.Client{Transport: NewRetryTransport(base, cfg.MaxRetries, logger)}
}

// baseTransport bounds every single attempt by timeout.
func baseTransport(timeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = timeout
	t.ResponseHeaderTimeout = timeout
	return t
}

// FetchRepositories dispatches to the batched GraphQL query or to per-repository REST calls.
// ETags are only used over REST; the GraphQL API has no conditional requests.
func (g *GitHubGateway) FetchRepositories(ctx context.Context, repos []domain.RepoRef, etags map[string]string) (map[string]domain.RepoStats, error) {
	if len(repos) == 0 {
		return map[string]domain.RepoStats{}, nil
	}
	if g.useGraphQL {
		return g.fetchGraphQL(ctx, repos)
	}
	return g.fetchREST(ctx, repos, etags)
}

// batchQuery builds the query struct and variables for repos. Field i is aliased repo<i>
// and reads its owner and name from $owner<i> and $name<i>.
func batchQuery(repos []domain.RepoRef) (reflect.Value, map[string]interface{}) {
	fields := make([]reflect.StructField, len(repos))
	variables := make(map[string]interface{}, 2*len(repos))
	for i, ref := range repos {
		fields[i] = reflect.StructField{
			Name: fmt.Sprintf("Repo%d", i),
			Type: repositoryNodeType,
			Tag:  reflect.StructTag(fmt.Sprintf(`graphql:"repo%d: repository(owner: $owner%d, name: $name%d)"`, i, i, i)),
		}
		variables[fmt.Sprintf("owner%d", i)] = githubv4.String(ref.Owner)
		variables[fmt.Sprintf("name%d", i)] = githubv4.String(ref.Repo)
	}
	return reflect.New(reflect.StructOf(fields)), variables
}

func (g *GitHubGateway) fetchGraphQL(ctx context.Context, repos []domain.RepoRef) (map[string]domain.RepoStats, error) {
	g.logger.Debug("GraphQL batch query", "repos", len(repos))
	q, variables := batchQuery(repos)

	// Unresolvable repositories come back as null aliases alongside an errors list, so the
	// decoded data is read even when Query fails.
	queryErr := g.graphqlClient.Query(ctx, q.Interface(), variables)

	results := make(map[string]domain.RepoStats, len(repos))
	data := q.Elem()
	for i, ref := range repos {
		node, _ := data.Field(i).Interface().(*repositoryNode)
		if node == nil {
			continue
		}
		results[ref.Key()] = node.stats()
	}
	if queryErr != nil {
		return results, fmt.Errorf("failed to execute GraphQL batch query: %w", queryErr)
	}
	return results, nil
}

func (n *repositoryNode) stats() domain.RepoStats {
	s := domain.RepoStats{Stars: n.StargazerCount, IsArchived: n.IsArchived}
	if n.DefaultBranchRef != nil && n.DefaultBranchRef.Target != nil {
		if committed := n.DefaultBranchRef.Target.Commit.CommittedDate; !committed.IsZero() {
			s.LastContributed = formatTimestamp(committed.Time)
		}
	}
	return s
}

func formatTimestamp(t time.Time) *string {
	s := t.UTC().Format(time.RFC3339)
	return &s
}
