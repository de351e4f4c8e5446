package domain

import "strings"

// ArchivedRepo is one row of the persistent archived-repository list.
// Notes is edited by humans and never touched by the tool once written.
type ArchivedRepo struct {
	URL   string `json:"url"`
	Name  string `json:"name"`
	Date  string `json:"date"`
	Notes string `json:"notes"`
}

// NormalizeURL is the dedup key of the archived list.
func NormalizeURL(url string) string {
	return strings.ToLower(strings.TrimSpace(url))
}
