package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/collection-stats/internal/config"
	"github.com/naka-gawa/collection-stats/internal/gateway"
	"github.com/naka-gawa/collection-stats/internal/logging"
	"github.com/naka-gawa/collection-stats/internal/store"
	"github.com/naka-gawa/collection-stats/internal/usecase"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Updates GitHub stars and last contribution dates in the collection",
	Long: `Reads the collection, fetches stats for every entry with a GitHub badge, writes the
merged collection back, and records repositories newly archived upstream.

Configuration comes from the environment (GITHUB_TOKEN, MAX_RETRIES, INITIAL_DELAY,
CACHE_FILE, DEBUG_LOGGING, USE_GRAPHQL, ...). Flags override the environment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := applyFlags(cmd, cfg); err != nil {
			return err
		}

		logger := logging.New(os.Stderr, cfg.Debug)

		// Inject dependencies and run the main business logic.
		githubGateway, err := gateway.NewGitHubGateway(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to create GitHub gateway: %w", err)
		}
		cacheStore, err := store.OpenCacheStore(cfg.CacheFile)
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer cacheStore.Close()

		runner := usecase.NewRunner(cfg, githubGateway, cacheStore, logger)
		if _, err := runner.Run(ctx); err != nil {
			logger.Error("update failed", "error", err)
			return err
		}
		logger.Info("update completed successfully")
		return nil
	},
}

// applyFlags copies explicitly set flags over the environment configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.Debug = true
	}
	if flags.Changed("collection") {
		cfg.CollectionFile, _ = flags.GetString("collection")
	}
	if flags.Changed("cache") {
		cfg.CacheFile, _ = flags.GetString("cache")
	}
	if flags.Changed("archived") {
		cfg.ArchivedFile, _ = flags.GetString("archived")
	}
	if flags.Changed("max-retries") {
		cfg.MaxRetries, _ = flags.GetInt("max-retries")
	}
	if rest, _ := flags.GetBool("rest"); rest {
		cfg.UseGraphQL = false
	}
	return cfg.Validate()
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().StringP("collection", "c", "", "Path to the collection JSON file (default from COLLECTION_FILE)")
	updateCmd.Flags().String("cache", "", "Path to the stats cache (default from CACHE_FILE)")
	updateCmd.Flags().String("archived", "", "Path to the archived repository list (default from ARCHIVED_FILE)")
	updateCmd.Flags().Int("max-retries", 0, "Maximum retries per request (default from MAX_RETRIES)")
	updateCmd.Flags().Bool("rest", false, "Fetch each repository over the REST API instead of batched GraphQL")
}
