package orchestrator

import (
	"time"

	"github.com/libretto-pm/libretto/pkg/download"
	"github.com/libretto-pm/libretto/pkg/lockfile"
)

// ChangeKind classifies one package's movement between a prior lock and
// a newly-built one, per spec.md §4.K step 3's "diff against prior lock".
type ChangeKind int

const (
	Installed ChangeKind = iota
	Updated
	Removed
)

// Change is one package's lock-to-lock movement.
type Change struct {
	Kind ChangeKind
	ID   string
	// From is the prior version string; empty for Installed.
	From string
	// To is the new version string; empty for Removed.
	To string
}

// ChangeSet is the full diff between two lock files.
type ChangeSet struct {
	Changes []Change
}

// Any reports whether the diff found any movement at all.
func (c *ChangeSet) Any() bool {
	return c != nil && len(c.Changes) > 0
}

// Counts tallies each ChangeKind for the summary's reporting.
func (c *ChangeSet) Counts() (installed, updated, removed int) {
	if c == nil {
		return 0, 0, 0
	}
	for _, ch := range c.Changes {
		switch ch.Kind {
		case Installed:
			installed++
		case Updated:
			updated++
		case Removed:
			removed++
		}
	}
	return installed, updated, removed
}

// diffLocks compares a prior lock (possibly nil, when no lock existed
// yet) against a newly-built one, package by package, across both the
// production and require-dev sets.
func diffLocks(prior, next *lockfile.LockFile) *ChangeSet {
	priorVersions := map[string]string{}
	if prior != nil {
		for _, p := range prior.Packages {
			priorVersions[p.ID.String()] = p.Version.String()
		}
		for _, p := range prior.PackagesDev {
			priorVersions[p.ID.String()] = p.Version.String()
		}
	}

	nextVersions := map[string]string{}
	cs := &ChangeSet{}
	record := func(p lockfile.LockedPackage) {
		id := p.ID.String()
		newVersion := p.Version.String()
		nextVersions[id] = newVersion
		oldVersion, existed := priorVersions[id]
		switch {
		case !existed:
			cs.Changes = append(cs.Changes, Change{Kind: Installed, ID: id, To: newVersion})
		case oldVersion != newVersion:
			cs.Changes = append(cs.Changes, Change{Kind: Updated, ID: id, From: oldVersion, To: newVersion})
		}
	}
	for _, p := range next.Packages {
		record(p)
	}
	for _, p := range next.PackagesDev {
		record(p)
	}

	for id, oldVersion := range priorVersions {
		if _, ok := nextVersions[id]; !ok {
			cs.Changes = append(cs.Changes, Change{Kind: Removed, ID: id, From: oldVersion})
		}
	}
	return cs
}

// Summary is install_or_update's return value, per spec.md §4.K step 7:
// "counts per change kind, errors, timings".
type Summary struct {
	Mode       Mode
	StartedAt  time.Time
	FinishedAt time.Time

	Changes   *ChangeSet
	Artifacts []download.Result
	Errors    []error
}

// Duration is the wall-clock span of the Run call this Summary reports on.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
