package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummary_StarStats(t *testing.T) {
	testCases := []struct {
		name           string
		stars          []float64
		expectedTotal  float64
		expectedMean   float64
		expectedMedian float64
	}{
		{name: "no data", stars: nil},
		{name: "odd count", stars: []float64{1, 10, 4}, expectedTotal: 15, expectedMean: 5, expectedMedian: 4},
		{name: "even count", stars: []float64{1, 2, 3, 10}, expectedTotal: 16, expectedMean: 4, expectedMedian: 2.5},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			total, mean, median := Summary{Stars: tc.stars}.StarStats()
			assert.Equal(t, tc.expectedTotal, total)
			assert.Equal(t, tc.expectedMean, mean)
			assert.Equal(t, tc.expectedMedian, median)
		})
	}
}

func TestSummary_Markdown(t *testing.T) {
	md := Summary{Processed: 3, Updated: 1, Unchanged: 1, Skipped: 2, Errors: 1, NewArchived: 1, Stars: []float64{2, 4}}.Markdown()

	assert.Contains(t, md, "| Processed | 3 |")
	assert.Contains(t, md, "| Updated | 1 |")
	assert.Contains(t, md, "| Skipped | 2 |")
	assert.Contains(t, md, "| Errors | 1 |")
	assert.Contains(t, md, "| Newly archived | 1 |")
	assert.Contains(t, md, "Stars: 6 total, 3.0 mean, 3.0 median")
}

func TestAppendStepSummary(t *testing.T) {
	assert.NoError(t, AppendStepSummary("", Summary{}))

	path := filepath.Join(t.TempDir(), "summary.md")
	require.NoError(t, os.WriteFile(path, []byte("previous step\n"), 0o644))

	require.NoError(t, AppendStepSummary(path, Summary{Processed: 1, Updated: 1}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(got), "previous step\n")
	assert.Contains(t, string(got), "| Updated | 1 |")
}
