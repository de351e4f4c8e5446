// Package archive tracks repositories that were archived upstream.
//
// The persistent list is append-only: records already on disk, including any notes a
// maintainer added by hand, are written back byte for byte.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/naka-gawa/collection-stats/internal/domain"
	"github.com/naka-gawa/collection-stats/internal/jsonfile"
)

// Tracker holds the persistent list and the records staged during a run.
type Tracker struct {
	existing []json.RawMessage
	seen     map[string]bool
	staged   []domain.ArchivedRepo
}

// Artifact is the per-run file read by the reporting workflow.
type Artifact struct {
	ArchivedRepos []domain.ArchivedRepo `json:"archived_repos"`
	RunDate       string                `json:"run_date"`
}

// Parse builds a Tracker from the contents of the persistent list.
func Parse(data []byte) (*Tracker, error) {
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsArray() {
		return nil, errors.New("archived repository list must be a JSON array")
	}
	var existing []json.RawMessage
	if err := json.Unmarshal(data, &existing); err != nil {
		return nil, fmt.Errorf("failed to decode archived repository list: %w", err)
	}
	t := &Tracker{existing: existing, seen: make(map[string]bool, len(existing))}
	for _, rec := range existing {
		if url := gjson.GetBytes(rec, "url"); url.Type == gjson.String {
			t.seen[domain.NormalizeURL(url.Str)] = true
		}
	}
	return t, nil
}

// Load reads the persistent list at path. A missing file is an empty list.
func Load(path string) (*Tracker, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Tracker{seen: map[string]bool{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Stage records ref as newly archived unless its URL is already known. It reports whether
// the repository was staged.
func (t *Tracker) Stage(ref domain.RepoRef, name, date string) bool {
	url := ref.URL()
	key := domain.NormalizeURL(url)
	if t.seen[key] {
		return false
	}
	t.seen[key] = true
	if strings.TrimSpace(name) == "" {
		name = ref.Key()
	}
	t.staged = append(t.staged, domain.ArchivedRepo{URL: url, Name: name, Date: date})
	return true
}

// Staged returns the records found during this run.
func (t *Tracker) Staged() []domain.ArchivedRepo {
	return t.staged
}

// Len returns the size of the merged list.
func (t *Tracker) Len() int {
	return len(t.existing) + len(t.staged)
}

// Encode renders the existing records followed by the staged ones, indented by two spaces.
func (t *Tracker) Encode() ([]byte, error) {
	elems := make([]json.RawMessage, 0, t.Len())
	elems = append(elems, t.existing...)
	for _, rec := range t.staged {
		raw, err := jsonfile.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to encode archived repository %s: %w", rec.URL, err)
		}
		elems = append(elems, raw)
	}
	return jsonfile.Indent(jsonfile.JoinArray(elems), "  ")
}

// Save writes the merged list to path. Nothing is written when no record was staged, so an
// idle run leaves the file untouched.
func (t *Tracker) Save(path string) (bool, error) {
	if len(t.staged) == 0 {
		return false, nil
	}
	data, err := t.Encode()
	if err != nil {
		return false, err
	}
	if err := jsonfile.WriteAtomic(path, data); err != nil {
		return false, err
	}
	return true, nil
}

// WriteArtifact writes the staged records and the run date to path. It is written on every
// run, empty when nothing new was found.
func (t *Tracker) WriteArtifact(path, runDate string) error {
	artifact := Artifact{ArchivedRepos: t.staged, RunDate: runDate}
	if artifact.ArchivedRepos == nil {
		artifact.ArchivedRepos = []domain.ArchivedRepo{}
	}
	raw, err := jsonfile.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to encode archived repository artifact: %w", err)
	}
	data, err := jsonfile.Indent(raw, "  ")
	if err != nil {
		return err
	}
	return jsonfile.WriteAtomic(path, data)
}
