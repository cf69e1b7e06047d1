// Package urlutil canonicalises URLs into stable cache and polling keys.
package urlutil

import (
	"net/url"
	"strings"
)

// Normalize canonicalises a URL so that trivially different spellings of the
// same resource produce the same key: the host is lower-cased and trailing
// slashes are stripped from the path, while scheme, query string, and path
// segment case are preserved. Non-absolute input is trimmed and
// trailing-slash-stripped without host processing. Normalize is idempotent.
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return strings.TrimRight(trimmed, "/")
	}
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}
