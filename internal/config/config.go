// Package config builds the run configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// MaxBatchSize bounds the number of aliased repositories in one GraphQL query.
const MaxBatchSize = 50

// Config is constructed once per run and passed to every component.
type Config struct {
	// Token authenticates API calls. Unauthenticated access works at a lower rate limit.
	Token string `env:"GITHUB_TOKEN"`
	// MaxRetries is the number of retries after the first attempt of a request.
	MaxRetries int `env:"MAX_RETRIES" envDefault:"3"`
	// InitialDelay is the pause, in seconds, between chunks (GraphQL) or requests (REST).
	InitialDelay float64 `env:"INITIAL_DELAY" envDefault:"1"`
	// CacheFile is the cache location. A .db or .sqlite extension selects the SQLite store.
	CacheFile string `env:"CACHE_FILE" envDefault:".github_stats_cache.json"`
	Debug     bool   `env:"DEBUG_LOGGING" envDefault:"false"`
	// UseGraphQL selects batched GraphQL queries. When false each repository is fetched over REST.
	// Unset, it follows the token: the GraphQL API rejects unauthenticated requests.
	UseGraphQL bool `env:"USE_GRAPHQL" envDefault:"true"`

	CollectionFile string `env:"COLLECTION_FILE" envDefault:"_data/collection.json"`
	ArchivedFile   string `env:"ARCHIVED_FILE" envDefault:"_data/archived.json"`
	ArtifactFile   string `env:"ARCHIVED_ARTIFACT_FILE" envDefault:"new_archived_repos.json"`
	IssueBodyFile  string `env:"ARCHIVED_ISSUE_BODY_FILE" envDefault:"archived_issue_body.md"`
	// StepSummary is appended to when set, as GitHub Actions does for job summaries.
	StepSummary string `env:"GITHUB_STEP_SUMMARY"`

	GraphQLURL     string        `env:"GITHUB_GRAPHQL_URL" envDefault:"https://api.github.com/graphql"`
	APIURL         string        `env:"GITHUB_API_URL" envDefault:"https://api.github.com/"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	BatchSize      int           `env:"BATCH_SIZE" envDefault:"50"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if _, set := os.LookupEnv("USE_GRAPHQL"); !set && cfg.Token == "" {
		cfg.UseGraphQL = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return fmt.Errorf("invalid MAX_RETRIES %d: must not be negative", c.MaxRetries)
	case c.InitialDelay < 0:
		return fmt.Errorf("invalid INITIAL_DELAY %v: must not be negative", c.InitialDelay)
	case c.BatchSize < 1 || c.BatchSize > MaxBatchSize:
		return fmt.Errorf("invalid BATCH_SIZE %d: must be between 1 and %d", c.BatchSize, MaxBatchSize)
	case c.RequestTimeout <= 0:
		return fmt.Errorf("invalid REQUEST_TIMEOUT %v: must be positive", c.RequestTimeout)
	case c.CollectionFile == "":
		return errors.New("collection file path is empty")
	}
	return nil
}

// Delay returns InitialDelay as a duration.
func (c *Config) Delay() time.Duration {
	return time.Duration(c.InitialDelay * float64(time.Second))
}
