package repository

import (
	"regexp"
	"strings"
)

// MaxPageSize caps TaskQuery.Limit for every backend.
const MaxPageSize = 100

// Normalize fills defaults and clamps the limit. def is the configured
// page size used when Limit is not positive.
func (q TaskQuery) Normalize(def int) TaskQuery {
	if def <= 0 {
		def = 20
	}
	if q.Limit <= 0 {
		q.Limit = def
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	switch q.SortBy {
	case SortCreatedAt, SortUpdatedAt, SortTitle, SortStatus:
	default:
		q.SortBy = SortCreatedAt
	}
	q.Search = strings.TrimSpace(q.Search)
	return q
}

// QuotedSearch returns the search term escaped for use inside a regular
// expression, so that user input always matches literally.
func (q TaskQuery) QuotedSearch() string {
	return regexp.QuoteMeta(q.Search)
}

// LikeSearch returns the search term as a SQL LIKE pattern with %, _ and
// the escape character itself escaped by a backslash.
func (q TaskQuery) LikeSearch() string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return "%" + r.Replace(q.Search) + "%"
}

// MatchesSearch reports whether title or description contains the search
// term, ignoring case. An empty term matches everything.
func (q TaskQuery) MatchesSearch(title, description string) bool {
	if q.Search == "" {
		return true
	}
	term := strings.ToLower(q.Search)
	return strings.Contains(strings.ToLower(title), term) ||
		strings.Contains(strings.ToLower(description), term)
}
