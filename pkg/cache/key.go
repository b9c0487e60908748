package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// keyHash joins parts with a separator unlikely to collide with any
// part's own content, then SHA-256-hashes the result, giving a fixed-
// width content-addressed key regardless of how long or how many parts
// went into it.
func keyHash(parts []string) string {
	joined := strings.Join(parts, "\x00")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}
