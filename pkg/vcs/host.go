package vcs

import (
	"net/url"
	"strings"
)

// hostOf extracts the host from a remote URL, understanding both
// standard schemes (https://host/path, ssh://host/path) and git's
// scp-like shorthand (user@host:path).
func hostOf(rawurl string) string {
	if rawurl == "" {
		return ""
	}
	if u, err := url.Parse(rawurl); err == nil && u.Host != "" {
		return u.Hostname()
	}
	if at := strings.Index(rawurl, "@"); at >= 0 {
		rest := rawurl[at+1:]
		if colon := strings.Index(rest, ":"); colon >= 0 {
			return rest[:colon]
		}
	}
	return ""
}
