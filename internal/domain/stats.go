// Package domain contains the core data structures shared by the stats updater.
package domain

// RepoRef identifies a GitHub repository as parsed from a collection badge.
type RepoRef struct {
	Owner string
	Repo  string
}

// Key returns the "owner/repo" identifier used by the cache and the result maps.
func (r RepoRef) Key() string {
	return r.Owner + "/" + r.Repo
}

// URL returns the canonical github.com URL of the repository.
func (r RepoRef) URL() string {
	return "https://github.com/" + r.Key()
}

// RepoStats is what the remote API reports for a single repository.
// LastContributed is nil when the default branch has no commit (e.g. an empty repository).
//
// NotModified is set when a conditional request matched the cached ETag. The other fields
// are then empty and the cached record is authoritative.
type RepoStats struct {
	Stars           int
	LastContributed *string
	IsArchived      bool
	ETag            string
	NotModified     bool
}

// FetchResult is the per-run outcome for one repository.
//
// DataChanged answers "did upstream move since the last cached fetch", which is not the same
// question as whether the collection entry changed. The updater keeps both.
type FetchResult struct {
	Stars           int
	LastContributed *string
	IsArchived      bool
	DataChanged     bool
	FromCache       bool
}
