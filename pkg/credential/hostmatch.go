package credential

import "strings"

// hostMatches reports whether host satisfies pattern, case-insensitively.
// pattern is either an exact hostname or a "*.suffix" wildcard (spec.md
// §4.J: "exact and *.suffix wildcards").
func hostMatches(pattern, host string) bool {
	pattern = strings.ToLower(pattern)
	host = strings.ToLower(host)
	if pattern == host {
		return true
	}
	suffix, ok := strings.CutPrefix(pattern, "*.")
	if !ok {
		return false
	}
	return strings.HasSuffix(host, "."+suffix) || host == suffix
}

// bestMatch returns the most specific key in entries matching host: an
// exact match always wins over a wildcard, and among wildcards the one
// with the longest suffix wins (so "*.ci.example.com" beats
// "*.example.com" for host "runner.ci.example.com").
func bestMatch(entries map[string]struct{}, host string) (string, bool) {
	var best string
	found := false
	for pattern := range entries {
		if !hostMatches(pattern, host) {
			continue
		}
		if !found || specificity(pattern) > specificity(best) {
			best = pattern
			found = true
		}
	}
	return best, found
}

func specificity(pattern string) int {
	if !strings.HasPrefix(pattern, "*.") {
		return len(pattern) + 1000 // exact match always outranks any wildcard
	}
	return len(pattern)
}
