package lockfile

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/libretto-pm/libretto/pkg/manifest"
)

// ComputeContentHash hashes the manifest's canonical hash-input struct
// with MD5, exactly as Composer's own lock-file format does: this hash
// is wire-mandated (spec.md §3), not a design choice, so no third-party
// hashing library improves on the standard library here.
func ComputeContentHash(m *manifest.Manifest, preferLowest bool) (string, error) {
	inputs := m.ContentHashInputs(preferLowest)
	data, err := manifest.CanonicalJSON(inputs)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}
