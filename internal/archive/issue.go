package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/naka-gawa/collection-stats/internal/domain"
)

const issueFooter = `
These repositories are now read-only upstream. Please review the matching collection entries
and decide whether they should stay listed. Notes about each decision can be added to the
archived repositories list; existing notes are kept on every run.
`

// IssueBody renders the markdown body of the "newly archived repositories" issue.
func IssueBody(repos []domain.ArchivedRepo, runDate string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Newly archived repositories (%s)\n\n", runDate)
	fmt.Fprintf(&b, "The stats update found %d repositor%s archived on GitHub:\n\n", len(repos), plural(len(repos)))
	b.WriteString("| Name | Repository | Detected |\n")
	b.WriteString("| --- | --- | --- |\n")
	for _, r := range repos {
		fmt.Fprintf(&b, "| %s | %s | %s |\n", escapeCell(r.Name), r.URL, r.Date)
	}
	b.WriteString(issueFooter)
	return b.String()
}

// WriteIssueBody writes the issue body to path when there is something to report. Otherwise
// a body left over from an earlier run is removed.
func (t *Tracker) WriteIssueBody(path, runDate string) (bool, error) {
	if len(t.staged) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("failed to remove stale issue body %s: %w", path, err)
		}
		return false, nil
	}
	if err := os.WriteFile(path, []byte(IssueBody(t.staged, runDate)), 0o644); err != nil {
		return false, fmt.Errorf("failed to write issue body %s: %w", path, err)
	}
	return true, nil
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
