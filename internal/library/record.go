// Package library holds the persisted record of shows seen on Kitsu and
// whether each one has been handed to Sonarr.
package library

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type Subtype string

const (
	SubtypeTV    Subtype = "TV"
	SubtypeMovie Subtype = "movie"
)

var ErrBadCrossReference = errors.New("malformed tvdb cross-reference")

type Title struct {
	Romaji  string  `json:"romaji"`
	English *string `json:"english"`
}

// Display returns the english title when Kitsu has one, the romaji title
// otherwise. The bool reports whether the fallback was taken.
func (t Title) Display() (string, bool) {
	if t.English != nil && strings.TrimSpace(*t.English) != "" {
		return *t.English, false
	}
	return t.Romaji, true
}

// Record is keyed by Kitsu media id in Records. The JSON names are the ones
// earlier versions wrote to library.json.
type Record struct {
	Title     Title   `json:"name"`
	TVDBRef   string  `json:"tvdbId"`
	Subtype   Subtype `json:"type,omitempty"`
	Delivered bool    `json:"inSonarr"`
}

// TVDBID parses the leading numeric segment of a reference like "81381/series".
func (r Record) TVDBID() (int, error) {
	head, _, _ := strings.Cut(r.TVDBRef, "/")
	id, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadCrossReference, r.TVDBRef)
	}
	return id, nil
}

// Deliverable reports whether the record still has to be sent to Sonarr.
// Only TV shows are delivered; records without a subtype predate the field
// and were all TV.
func (r Record) Deliverable() bool {
	return !r.Delivered && (r.Subtype == "" || r.Subtype == SubtypeTV)
}

type Records map[string]Record

// Keys returns the record ids in a stable order.
func (rs Records) Keys() []string {
	keys := make([]string, 0, len(rs))
	for k := range rs {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// sortKeys orders numeric ids numerically and everything else after them.
func sortKeys(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		a, aerr := strconv.Atoi(keys[i])
		b, berr := strconv.Atoi(keys[j])
		switch {
		case aerr == nil && berr == nil:
			return a < b
		case aerr == nil:
			return true
		case berr == nil:
			return false
		}
		return keys[i] < keys[j]
	})
}
