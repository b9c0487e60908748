// Package solver implements the conflict-driven, PubGrub-family version
// solver over a fetched package universe.
//
// Grounded simultaneously on contriboss-pubgrub-go/types.go for the
// Term/Incompatibility/PartialSolution vocabulary the PubGrub family
// uses, and on golang-dep/internal/gps/solver.go's concrete backtracking
// mechanics (selection, versionQueue, two-pass replacement handling) for
// how that vocabulary wires to a real dependency-provider interface.
package solver

import (
	"github.com/libretto-pm/libretto/pkg/manifest"
	"github.com/libretto-pm/libretto/pkg/version"
)

// Provider is the solver's dependency-provider capability set (spec §9's
// design note): a storage backend the solver is polymorphic over. The
// main pipeline backs it with the streaming fetcher's in-memory universe;
// tests back it with an in-memory universe built from fixtures.
type Provider interface {
	GetPackage(id manifest.PackageID) (*manifest.Entry, bool)
	GetDependencies(id manifest.PackageID, v version.Version) (requires map[manifest.PackageID]version.Constraint, ok bool)
}

// UniverseProvider adapts a manifest.Universe (as assembled by the
// streaming fetch driver) to Provider.
type UniverseProvider struct {
	Universe manifest.Universe
}

func (p UniverseProvider) GetPackage(id manifest.PackageID) (*manifest.Entry, bool) {
	e, ok := p.Universe[id]
	return e, ok
}

func (p UniverseProvider) GetDependencies(id manifest.PackageID, v version.Version) (map[manifest.PackageID]version.Constraint, bool) {
	e, ok := p.Universe[id]
	if !ok {
		return nil, false
	}
	for _, pv := range e.Versions {
		if version.Equal(pv.Version, v) {
			return pv.Requires, true
		}
	}
	return nil, false
}

// versionRecord looks up the full PackageVersion record (needed for
// Replaces/Provides/Conflicts, not just Requires).
func versionRecord(p Provider, id manifest.PackageID, v version.Version) (manifest.PackageVersion, bool) {
	e, ok := p.GetPackage(id)
	if !ok || e == nil {
		return manifest.PackageVersion{}, false
	}
	for _, pv := range e.Versions {
		if version.Equal(pv.Version, v) {
			return pv, true
		}
	}
	return manifest.PackageVersion{}, false
}
