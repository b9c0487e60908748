package manifest

import "github.com/libretto-pm/libretto/pkg/version"

// Dist is an archived distribution source: an archive type ("zip", "tar",
// ...), a URL, and an optional SHA-1 digest used for dist-level
// integrity checks ahead of the full multi-algorithm checksum the
// download pool computes.
type Dist struct {
	Type string `json:"type"`
	URL  string `json:"url"`
	SHA1 string `json:"shasum,omitempty"`
}

// Source is a VCS checkout source: a VCS type ("git", "svn", "hg",
// "fossil", "perforce"), a URL, and a reference (tag, branch, or commit).
type Source struct {
	Type      string `json:"type"`
	URL       string `json:"url"`
	Reference string `json:"reference"`
}

// Autoload describes the PSR-4/PSR-0/classmap/files autoload mapping a
// package declares. The core only carries this data through to the
// external autoload generator (spec §6) — it does not interpret it.
type Autoload struct {
	PSR4      map[string][]string
	PSR0      map[string][]string
	Classmap  []string
	Files     []string
}

// PackageVersion is one version record of a package: its requirements,
// its replace/provide/conflict declarations, and its artifact sources.
type PackageVersion struct {
	ID       PackageID
	Version  version.Version
	Requires map[PackageID]version.Constraint
	// RequiresDev is only meaningful on the manifest root; dependency
	// package version records leave it nil.
	RequiresDev map[PackageID]version.Constraint

	// Replaces maps a PackageID this version stands in for to the
	// constraint on that package's version it satisfies.
	Replaces map[PackageID]version.Constraint
	// Provides maps a virtual-capability PackageID to the constraint on
	// it this version fulfils.
	Provides map[PackageID]version.Constraint
	// Conflicts forbids resolving alongside any matching version of the
	// named package.
	Conflicts map[PackageID]version.Constraint

	Dist     *Dist
	Source   *Source
	Autoload Autoload
	Metadata map[string]interface{}

	// Abandoned is non-nil when the registry marked this package
	// abandoned; if non-empty it names the suggested replacement.
	// Supplemental field from original_source's client.rs — Packagist's
	// "abandoned" key is bool-or-string in the wild.
	Abandoned *string
}

// Entry is a package's full version history as served by the registry:
// PackageID -> ordered list of version records (spec §3 "Package entry").
type Entry struct {
	ID       PackageID
	Versions []PackageVersion
}

// Universe is the full snapshot of reachable package version records
// assembled by the streaming fetch driver.
type Universe map[PackageID]*Entry
