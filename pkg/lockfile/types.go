// Package lockfile implements the manifest.lock data model: a
// deterministic, content-hash-stamped snapshot of a Resolution, its
// canonical JSON (de)serialization, and the atomic-write/drift-detection
// machinery spec.md §3 and §4.F require of a lock store.
//
// Grounded on golang-dep/lock.go's lock (de)serialization and sorted
// comparison, and golang-dep/txn_writer.go's SafeWriter pseudo-atomic
// write-then-rename pattern, generalized from a manifest+lock+vendor
// triple to the single-file lock store this system needs.
package lockfile

import (
	"github.com/libretto-pm/libretto/pkg/manifest"
	"github.com/libretto-pm/libretto/pkg/version"
)

// FileName is the canonical lock file name.
const FileName = "manifest.lock"

// SchemaVersion is bumped whenever the on-disk shape changes in a way
// that requires a migration step on read.
const SchemaVersion = 1

// LockedPackage is one resolved package entry as written to disk.
type LockedPackage struct {
	ID        manifest.PackageID
	Version   version.Version
	Dist      *manifest.Dist
	Source    *manifest.Source
	Requires  map[manifest.PackageID]version.Constraint
	Replaces  map[manifest.PackageID]version.Constraint
	Provides  map[manifest.PackageID]version.Constraint
	Conflicts map[manifest.PackageID]version.Constraint
	Abandoned *string
}

// LockFile is the full, deterministic snapshot written to manifest.lock.
type LockFile struct {
	SchemaVersion int
	ContentHash   string

	Packages    []LockedPackage
	PackagesDev []LockedPackage

	Aliases []resolutionAlias

	MinimumStability string
	StabilityFlags   map[string]string
	PreferStable     bool
	Platform         map[string]string
	PlatformOverride map[string]string
}

// resolutionAlias mirrors resolution.Alias inside the lock file; toRaw
// renders both versions as their raw strings for JSON encoding.
type resolutionAlias struct {
	Of version.Version
	As version.Version
}
