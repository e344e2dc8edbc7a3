package postgres

import "strings"

// Default orderings.
const (
	orderByTypeAsc        = " ORDER BY type ASC"
	orderByInvitedAtDesc  = "c.invited_at DESC"
	orderByAssignedAtDesc = " ORDER BY assigned_at DESC"
)

// escapeLikePattern escapes special characters in LIKE/ILIKE patterns so
// user search input cannot inject wildcards.
func escapeLikePattern(s string) string {
	// Escape backslash first (since it's the escape character)
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// wrapLikePattern wraps a search term with % wildcards after escaping.
// Use this for substring search: wrapLikePattern("foo") returns "%foo%"
func wrapLikePattern(s string) string {
	return "%" + escapeLikePattern(s) + "%"
}
