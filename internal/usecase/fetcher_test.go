package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/collection-stats/internal/domain"
)

func TestStatsFetcher_Chunking(t *testing.T) {
	fetcher := new(mockFetcher)
	repos := []domain.RepoRef{ref("o", "a"), ref("o", "b"), ref("o", "c"), ref("o", "b"), ref("o", "d"), ref("o", "e")}

	fetcher.On("FetchRepositories", mock.Anything, []domain.RepoRef{ref("o", "a"), ref("o", "b")}, mock.Anything).
		Return(map[string]domain.RepoStats{"o/a": {Stars: 1}, "o/b": {Stars: 2}}, nil).Once()
	fetcher.On("FetchRepositories", mock.Anything, []domain.RepoRef{ref("o", "c"), ref("o", "d")}, mock.Anything).
		Return(map[string]domain.RepoStats{"o/c": {Stars: 3}, "o/d": {Stars: 4}}, nil).Once()
	fetcher.On("FetchRepositories", mock.Anything, []domain.RepoRef{ref("o", "e")}, mock.Anything).
		Return(map[string]domain.RepoStats{"o/e": {Stars: 5}}, nil).Once()

	f, rec := newTestStatsFetcher(fetcher, 2)
	got, err := f.Fetch(context.Background(), repos, domain.Cache{})

	require.NoError(t, err)
	assert.Len(t, got.Results, 5)
	assert.Empty(t, got.Missing)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, rec.waits, "delay only between chunks")
	fetcher.AssertExpectations(t)
}

func TestStatsFetcher_DataChangedAgainstCache(t *testing.T) {
	fetcher := new(mockFetcher)
	date := "2024-01-01T00:00:00Z"
	cache := domain.Cache{
		"o/same":      {Stars: intPtr(10), LastContributed: strPtr(date), UpdatedAt: "2024-01-01T00:00:00Z"},
		"o/stars":     {Stars: intPtr(9), LastContributed: strPtr(date)},
		"o/date":      {Stars: intPtr(10), LastContributed: strPtr("2023-01-01T00:00:00Z")},
		"o/nulldate":  {Stars: intPtr(10)},
		"o/starsless": {LastContributed: strPtr(date)},
	}
	repos := []domain.RepoRef{ref("o", "same"), ref("o", "stars"), ref("o", "date"), ref("o", "nulldate"), ref("o", "starsless"), ref("o", "cold")}
	fresh := map[string]domain.RepoStats{}
	for _, r := range repos {
		fresh[r.Key()] = domain.RepoStats{Stars: 10, LastContributed: strPtr(date)}
	}
	fresh["o/nulldate"] = domain.RepoStats{Stars: 10}
	fetcher.On("FetchRepositories", mock.Anything, repos, mock.Anything).Return(fresh, nil).Once()

	f, _ := newTestStatsFetcher(fetcher, 50)
	got, err := f.Fetch(context.Background(), repos, cache)
	require.NoError(t, err)

	expectedChanged := map[string]bool{
		"o/same":      false,
		"o/stars":     true,
		"o/date":      true,
		"o/nulldate":  false,
		"o/starsless": true,
		"o/cold":      true,
	}
	for key, changed := range expectedChanged {
		assert.Equal(t, changed, got.Results[key].DataChanged, key)
		assert.False(t, got.Results[key].FromCache, key)
	}

	// The cache record is overwritten even when nothing changed.
	assert.Equal(t, domain.CacheRecord{Stars: intPtr(10), LastContributed: strPtr(date), UpdatedAt: "2024-06-01T12:00:00Z"}, cache["o/same"])
	assert.Equal(t, domain.CacheRecord{Stars: intPtr(10), LastContributed: strPtr(date), UpdatedAt: "2024-06-01T12:00:00Z"}, cache["o/cold"])
}

func TestStatsFetcher_CacheFallback(t *testing.T) {
	cached := domain.CacheRecord{Stars: intPtr(7), LastContributed: strPtr("2023-01-01T00:00:00Z"), UpdatedAt: "2023-01-02T00:00:00Z"}

	testCases := []struct {
		name       string
		fresh      map[string]domain.RepoStats
		fetchErr   error
		expectedOK []string
	}{
		{
			name:     "whole chunk fails",
			fresh:    nil,
			fetchErr: errors.New("non-200 OK status code: 502 Bad Gateway"),
		},
		{
			name:       "alias missing from a successful response",
			fresh:      map[string]domain.RepoStats{"o/fresh": {Stars: 1}},
			expectedOK: []string{"o/fresh"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fetcher := new(mockFetcher)
			repos := []domain.RepoRef{ref("o", "fresh"), ref("o", "cached"), ref("o", "unknown")}
			fetcher.On("FetchRepositories", mock.Anything, repos, mock.Anything).Return(tc.fresh, tc.fetchErr).Once()
			cache := domain.Cache{"o/cached": cached, "o/unknown": {UpdatedAt: "x"}}

			f, _ := newTestStatsFetcher(fetcher, 50)
			got, err := f.Fetch(context.Background(), repos, cache)
			require.NoError(t, err)

			assert.Equal(t, domain.FetchResult{Stars: 7, LastContributed: strPtr("2023-01-01T00:00:00Z"), FromCache: true}, got.Results["o/cached"])
			assert.Equal(t, cached, cache["o/cached"], "fallback never rewrites the cache")
			assert.Contains(t, got.Missing, ref("o", "unknown"), "a record without stars is not a fallback")
			_, present := got.Results["o/unknown"]
			assert.False(t, present)

			_, fresh := got.Results["o/fresh"]
			assert.Equal(t, len(tc.expectedOK) == 1, fresh)
			if !fresh {
				assert.Contains(t, got.Missing, ref("o", "fresh"))
				assert.Equal(t, 1, got.CacheFallbacks)
			}
		})
	}
}

func TestStatsFetcher_Cancelled(t *testing.T) {
	fetcher := new(mockFetcher)
	fetcher.On("FetchRepositories", mock.Anything, mock.Anything, mock.Anything).Return(map[string]domain.RepoStats{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f, _ := newTestStatsFetcher(fetcher, 1)
	_, err := f.Fetch(ctx, []domain.RepoRef{ref("o", "a"), ref("o", "b")}, domain.Cache{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatsFetcher_Empty(t *testing.T) {
	fetcher := new(mockFetcher)
	f, _ := newTestStatsFetcher(fetcher, 50)

	got, err := f.Fetch(context.Background(), nil, domain.Cache{})
	require.NoError(t, err)
	assert.Empty(t, got.Results)
	fetcher.AssertNotCalled(t, "FetchRepositories", mock.Anything, mock.Anything, mock.Anything)
}

func TestStatsFetcher_ConditionalRequests(t *testing.T) {
	fetcher := new(mockFetcher)
	date := "2024-01-01T00:00:00Z"
	cache := domain.Cache{
		"o/same":      {Stars: intPtr(10), LastContributed: strPtr(date), ETag: `"v1"`, UpdatedAt: "2024-01-01T00:00:00Z"},
		"o/moved":     {Stars: intPtr(3), ETag: `"v1"`},
		"o/starsless": {ETag: `"v1"`},
	}
	repos := []domain.RepoRef{ref("o", "same"), ref("o", "moved"), ref("o", "starsless")}

	// Only records that can answer a 304 send their ETag.
	fetcher.On("FetchRepositories", mock.Anything, repos, map[string]string{"o/same": `"v1"`, "o/moved": `"v1"`}).
		Return(map[string]domain.RepoStats{
			"o/same":      {ETag: `"v1"`, NotModified: true},
			"o/moved":     {Stars: 4, ETag: `"v2"`},
			"o/starsless": {NotModified: true},
		}, nil).Once()

	f, _ := newTestStatsFetcher(fetcher, 50)
	got, err := f.Fetch(context.Background(), repos, cache)
	require.NoError(t, err)

	assert.Equal(t, domain.FetchResult{Stars: 10, LastContributed: strPtr(date)}, got.Results["o/same"])
	assert.Equal(t, 0, got.CacheFallbacks, "a 304 is fresh data, not a fallback")
	assert.Equal(t, `"v1"`, cache["o/same"].ETag)
	assert.Equal(t, fixedNow.Format(time.RFC3339), cache["o/same"].UpdatedAt)

	assert.True(t, got.Results["o/moved"].DataChanged)
	assert.Equal(t, `"v2"`, cache["o/moved"].ETag)

	assert.Equal(t, []domain.RepoRef{ref("o", "starsless")}, got.Missing)
	fetcher.AssertExpectations(t)
}
