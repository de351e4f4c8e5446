// Package report renders the end-of-run summary.
package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/pterm/pterm"
)

// Summary aggregates the counters of one run.
//
// Updated and Unchanged compare collection entries before and after the run. They are not
// derived from the cache-level "data changed" flag, which can differ: a cold cache reports
// every repository as changed even when the collection already held the same values.
type Summary struct {
	Processed      int
	Updated        int
	Unchanged      int
	Skipped        int
	Errors         int
	CacheFallbacks int
	NewArchived    int
	// Stars holds the star count of every entry that received a result.
	Stars []float64
}

// StarStats returns the total, mean and median star counts. All are zero without data.
func (s Summary) StarStats() (total, mean, median float64) {
	if len(s.Stars) == 0 {
		return 0, 0, 0
	}
	total, _ = stats.Sum(s.Stars)
	mean, _ = stats.Mean(s.Stars)
	median, _ = stats.Median(s.Stars)
	return total, mean, median
}

// Markdown renders the summary for a GitHub Actions job summary.
func (s Summary) Markdown() string {
	total, mean, median := s.StarStats()
	var b strings.Builder
	b.WriteString("\n## GitHub Statistics Update\n\n")
	b.WriteString("| Metric | Count |\n| --- | --- |\n")
	fmt.Fprintf(&b, "| Processed | %d |\n", s.Processed)
	fmt.Fprintf(&b, "| Updated | %d |\n", s.Updated)
	fmt.Fprintf(&b, "| Unchanged | %d |\n", s.Unchanged)
	fmt.Fprintf(&b, "| Skipped | %d |\n", s.Skipped)
	fmt.Fprintf(&b, "| Errors | %d |\n", s.Errors)
	fmt.Fprintf(&b, "| Cache fallbacks | %d |\n", s.CacheFallbacks)
	fmt.Fprintf(&b, "| Newly archived | %d |\n", s.NewArchived)
	fmt.Fprintf(&b, "\nStars: %.0f total, %.1f mean, %.1f median\n", total, mean, median)
	return b.String()
}

// Print writes the summary to the terminal.
func Print(s Summary) {
	total, mean, median := s.StarStats()
	pterm.DefaultSection.Println("Summary")
	pterm.Info.Printf("Processed: %d\n", s.Processed)
	pterm.Success.Printf("Updated: %d\n", s.Updated)
	pterm.Info.Printf("Unchanged: %d\n", s.Unchanged)
	if s.Skipped > 0 {
		pterm.Warning.Printf("Skipped: %d\n", s.Skipped)
	}
	if s.Errors > 0 {
		pterm.Warning.Printf("Errors: %d\n", s.Errors)
	}
	if s.CacheFallbacks > 0 {
		pterm.Warning.Printf("Cache fallbacks: %d\n", s.CacheFallbacks)
	}
	if s.NewArchived > 0 {
		pterm.Warning.Printf("Newly archived repositories: %d\n", s.NewArchived)
	}
	pterm.Info.Printf("Stars: %.0f total, %.1f mean, %.1f median\n", total, mean, median)
}

// AppendStepSummary appends the markdown summary to path. An empty path is a no-op.
func AppendStepSummary(path string, s Summary) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open step summary %s: %w", path, err)
	}
	if _, err := f.WriteString(s.Markdown()); err != nil {
		f.Close()
		return fmt.Errorf("failed to write step summary %s: %w", path, err)
	}
	return f.Close()
}
