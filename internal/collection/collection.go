// Package collection reads and writes the primary data file: a tab-indented JSON array of
// directory entries.
//
// Entries are held as raw JSON. Only the fields the updater owns are rewritten, so key order,
// unknown fields and string escapes of curated entries survive a round trip unchanged.
package collection

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/naka-gawa/collection-stats/internal/domain"
	"github.com/naka-gawa/collection-stats/internal/jsonfile"
)

var (
	// ErrNotFound is returned when the collection file does not exist.
	ErrNotFound = errors.New("collection file not found")
	// ErrInvalidJSON is returned when the collection file does not parse.
	ErrInvalidJSON = errors.New("invalid JSON in collection file")
	// ErrNotArray is returned when the document root is not an array.
	ErrNotArray = errors.New("expected array at collection root")
)

// Collection is the in-memory form of the data file.
type Collection struct {
	Entries []json.RawMessage
}

// Parse decodes a collection document.
func Parse(data []byte) (*Collection, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	if !gjson.ParseBytes(data).IsArray() {
		return nil, ErrNotArray
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return &Collection{Entries: entries}, nil
}

// Load reads and parses the collection at path.
func Load(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Encode renders the collection with tab indentation and a trailing newline.
func (c *Collection) Encode() ([]byte, error) {
	return jsonfile.Indent(jsonfile.JoinArray(c.Entries), "\t")
}

// Save writes the collection to path.
func (c *Collection) Save(path string) error {
	data, err := c.Encode()
	if err != nil {
		return err
	}
	return jsonfile.WriteAtomic(path, data)
}

// IsObject reports whether entry i is a JSON object. Other entries are never touched.
func (c *Collection) IsObject(i int) bool {
	return gjson.ParseBytes(c.Entries[i]).IsObject()
}

// Badge returns the raw badge value of entry i. present is false when the field is absent,
// null, false or an empty string, i.e. the entry is not a GitHub project.
func (c *Collection) Badge(i int) (badge string, present bool) {
	res := gjson.GetBytes(c.Entries[i], "badge")
	switch res.Type {
	case gjson.Null, gjson.False:
		return "", false
	case gjson.String:
		return res.Str, res.Str != ""
	default:
		return res.Raw, true
	}
}

// Name returns the name of entry i, or "Unknown".
func (c *Collection) Name(i int) string {
	if res := gjson.GetBytes(c.Entries[i], "name"); res.Type == gjson.String {
		return res.Str
	}
	return "Unknown"
}

// Stars returns the current star count of entry i.
func (c *Collection) Stars(i int) (int, bool) {
	res := gjson.GetBytes(c.Entries[i], "stars")
	if res.Type != gjson.Number {
		return 0, false
	}
	return int(res.Int()), true
}

// LastContributed returns the current last_contributed value of entry i.
func (c *Collection) LastContributed(i int) (string, bool) {
	res := gjson.GetBytes(c.Entries[i], "last_contributed")
	if res.Type != gjson.String {
		return "", false
	}
	return res.Str, true
}

// SetStats overwrites stars and, when lastContributed is non-nil, last_contributed.
// A nil lastContributed never erases a previously known value.
func (c *Collection) SetStats(i int, stars int, lastContributed *string) error {
	raw, err := sjson.SetBytes(c.Entries[i], "stars", stars)
	if err != nil {
		return fmt.Errorf("failed to set stars on entry %d: %w", i, err)
	}
	if lastContributed != nil {
		raw, err = sjson.SetBytes(raw, "last_contributed", *lastContributed)
		if err != nil {
			return fmt.Errorf("failed to set last_contributed on entry %d: %w", i, err)
		}
	}
	c.Entries[i] = raw
	return nil
}

// ParseBadge splits an "owner/repo" badge. It requires exactly two segments, each non-empty
// after trimming.
func ParseBadge(badge string) (domain.RepoRef, bool) {
	parts := strings.Split(badge, "/")
	if len(parts) != 2 {
		return domain.RepoRef{}, false
	}
	owner, repo := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if owner == "" || repo == "" {
		return domain.RepoRef{}, false
	}
	return domain.RepoRef{Owner: owner, Repo: repo}, true
}
