package usecase

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/naka-gawa/collection-stats/internal/domain"
)

// mockFetcher is a mock implementation of the gateway.Fetcher interface.
// It allows us to simulate the behavior of the GitHub gateway without making real API calls.
type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchRepositories(ctx context.Context, repos []domain.RepoRef, etags map[string]string) (map[string]domain.RepoStats, error) {
	args := m.Called(ctx, repos, etags)
	// We need to handle the case where the returned map is nil (e.g., when an error occurs).
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.RepoStats), args.Error(1)
}

// sleepRecorder records requested sleeps instead of blocking.
type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStatsFetcher(fetcher *mockFetcher, batchSize int) (*StatsFetcher, *sleepRecorder) {
	rec := &sleepRecorder{}
	f := NewStatsFetcher(fetcher, batchSize, time.Second, discardLogger())
	f.sleep = rec.sleep
	f.now = func() time.Time { return fixedNow }
	return f, rec
}

func ref(owner, repo string) domain.RepoRef { return domain.RepoRef{Owner: owner, Repo: repo} }

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }
