package lockfile

import (
	"github.com/libretto-pm/libretto/pkg/manifest"
	"github.com/libretto-pm/libretto/pkg/resolution"
)

// Build converts a solved Resolution plus the root manifest that produced
// it into a LockFile ready for serialization. preferLowest selects which
// resolution mode's content-hash input was used, per spec.md §3's
// hash-input schema.
func Build(res *resolution.Resolution, root *manifest.Manifest, preferLowest bool) (*LockFile, error) {
	hash, err := ComputeContentHash(root, preferLowest)
	if err != nil {
		return nil, err
	}

	lf := &LockFile{
		SchemaVersion:    SchemaVersion,
		ContentHash:      hash,
		MinimumStability: root.MinimumStability.String(),
		PreferStable:     root.PreferStable,
		Platform:         root.Platform,
		PlatformOverride: root.Platform,
	}
	if len(root.StabilityFlags) > 0 {
		lf.StabilityFlags = make(map[string]string, len(root.StabilityFlags))
		for id, st := range root.StabilityFlags {
			lf.StabilityFlags[id.String()] = st.String()
		}
	}

	for _, alias := range res.Aliases {
		lf.Aliases = append(lf.Aliases, resolutionAlias{Of: alias.Of, As: alias.As})
	}

	for _, id := range res.SortedPackageIDs() {
		pv := res.Selected[id]
		entry := LockedPackage{
			ID:        id,
			Version:   pv.Version,
			Dist:      pv.Dist,
			Source:    pv.Source,
			Requires:  pv.Requires,
			Replaces:  pv.Replaces,
			Provides:  pv.Provides,
			Conflicts: pv.Conflicts,
			Abandoned: pv.Abandoned,
		}
		if res.DevSet[id] {
			lf.PackagesDev = append(lf.PackagesDev, entry)
		} else {
			lf.Packages = append(lf.Packages, entry)
		}
	}

	return lf, nil
}

// ToResolution converts a parsed LockFile back into a resolution.
// Resolution containing exactly the locked selections, with no solving
// — the inverse of Build, used by the orchestrator's install-from-lock
// fast path (spec.md §4.K step 2) to skip fetch+solve entirely when the
// lock's content-hash still matches the manifest.
func (lf *LockFile) ToResolution() *resolution.Resolution {
	res := resolution.New()
	add := func(p LockedPackage, dev bool) {
		res.Selected[p.ID] = manifest.PackageVersion{
			ID:        p.ID,
			Version:   p.Version,
			Requires:  p.Requires,
			Replaces:  p.Replaces,
			Provides:  p.Provides,
			Conflicts: p.Conflicts,
			Dist:      p.Dist,
			Source:    p.Source,
			Abandoned: p.Abandoned,
		}
		res.DevSet[p.ID] = dev
		res.Graph.AddNode(p.ID)
	}
	for _, p := range lf.Packages {
		add(p, false)
	}
	for _, p := range lf.PackagesDev {
		add(p, true)
	}
	for _, a := range lf.Aliases {
		res.Aliases = append(res.Aliases, resolution.Alias{Of: a.Of, As: a.As})
	}
	return res
}
