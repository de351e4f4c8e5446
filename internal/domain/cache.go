package domain

// CacheRecord is the last known state of a repository.
// A record without Stars is not a usable fallback.
type CacheRecord struct {
	Stars           *int    `json:"stars,omitempty"`
	LastContributed *string `json:"last_contributed"`
	// ETag validates conditional REST requests for the repository.
	ETag      string `json:"etag,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Cache maps "owner/repo" to its CacheRecord.
type Cache map[string]CacheRecord

// Fallback returns the cached stats for key when the record holds a star count.
func (c Cache) Fallback(key string) (FetchResult, bool) {
	rec, ok := c[key]
	if !ok || rec.Stars == nil {
		return FetchResult{}, false
	}
	return FetchResult{
		Stars:           *rec.Stars,
		LastContributed: rec.LastContributed,
		FromCache:       true,
	}, true
}

// ETags returns the ETag of every record in refs that can also serve a 304 answer.
func (c Cache) ETags(refs []RepoRef) map[string]string {
	etags := make(map[string]string)
	for _, ref := range refs {
		if rec, ok := c[ref.Key()]; ok && rec.ETag != "" && rec.Stars != nil {
			etags[ref.Key()] = rec.ETag
		}
	}
	return etags
}
