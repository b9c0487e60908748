package lockfile

import (
	"github.com/libretto-pm/libretto/pkg/manifest"
)

// DriftReport is what DetectDrift returns when a lock file no longer
// matches its manifest: a content-hash mismatch (the manifest's
// requirements changed since the lock was written) and/or root
// requirements with no corresponding locked package at all.
type DriftReport struct {
	HashMismatch    bool
	StoredHash      string
	CurrentHash     string
	MissingRequires []manifest.PackageID
}

// Drifted reports whether the lock needs regenerating.
func (d *DriftReport) Drifted() bool {
	return d != nil && (d.HashMismatch || len(d.MissingRequires) > 0)
}

// DetectDrift recomputes the manifest's content hash and compares it
// against the lock's stored hash, and checks that every root
// requirement has a matching locked package. It never inspects the
// transitive graph — that level of staleness (a locked transitive
// dependency no longer satisfying some other locked package's
// requirement) is the solver's job to re-derive, not this package's to
// diff (spec §4.F "drift is a hash/requirement check, not a re-solve").
func DetectDrift(lf *LockFile, root *manifest.Manifest, preferLowest bool) (*DriftReport, error) {
	current, err := ComputeContentHash(root, preferLowest)
	if err != nil {
		return nil, err
	}

	report := &DriftReport{
		StoredHash:   lf.ContentHash,
		CurrentHash:  current,
		HashMismatch: lf.ContentHash != current,
	}

	locked := make(map[manifest.PackageID]bool, len(lf.Packages)+len(lf.PackagesDev))
	for _, p := range lf.Packages {
		locked[p.ID] = true
	}
	for _, p := range lf.PackagesDev {
		locked[p.ID] = true
	}

	for id := range root.Require {
		if manifest.IsPlatform(id.String()) {
			continue
		}
		if !locked[id] {
			report.MissingRequires = append(report.MissingRequires, id)
		}
	}

	return report, nil
}
