package lockfile

import (
	"encoding/json"
	"fmt"

	"github.com/libretto-pm/libretto/pkg/manifest"
	"github.com/libretto-pm/libretto/pkg/version"
)

// Parse decodes a manifest.lock payload, migrating older schema
// versions first if needed.
func Parse(data []byte) (*LockFile, error) {
	var raw rawLockFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("lockfile: %w", err)
	}
	raw = migrate(raw)

	lf := &LockFile{
		SchemaVersion:    raw.SchemaVersion,
		ContentHash:      raw.ContentHash,
		MinimumStability: raw.MinimumStability,
		StabilityFlags:   raw.StabilityFlags,
		PreferStable:     raw.PreferStable,
		Platform:         raw.Platform,
	}

	var err error
	if lf.Packages, err = fromRawPackages(raw.Packages); err != nil {
		return nil, err
	}
	if lf.PackagesDev, err = fromRawPackages(raw.PackagesDev); err != nil {
		return nil, err
	}
	for _, a := range raw.Aliases {
		of, err := version.Parse(a.Version)
		if err != nil {
			return nil, fmt.Errorf("lockfile: alias version %q: %w", a.Version, err)
		}
		as, err := version.Parse(a.Alias)
		if err != nil {
			return nil, fmt.Errorf("lockfile: alias target %q: %w", a.Alias, err)
		}
		lf.Aliases = append(lf.Aliases, resolutionAlias{Of: of, As: as})
	}

	return lf, nil
}

// migrate upgrades older schema versions in place. There has only ever
// been one schema version so far; this is the seam future migrations
// hang off of.
func migrate(raw rawLockFile) rawLockFile {
	if raw.SchemaVersion == 0 {
		raw.SchemaVersion = SchemaVersion
	}
	return raw
}

func fromRawPackages(in []rawPackage) ([]LockedPackage, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]LockedPackage, 0, len(in))
	for _, rp := range in {
		id, err := manifest.ParsePackageID(rp.Name)
		if err != nil {
			return nil, fmt.Errorf("lockfile: package name %q: %w", rp.Name, err)
		}
		v, err := version.Parse(rp.Version)
		if err != nil {
			return nil, fmt.Errorf("lockfile: package %s version %q: %w", rp.Name, rp.Version, err)
		}
		lp := LockedPackage{
			ID:        id,
			Version:   v,
			Source:    rp.Source,
			Dist:      rp.Dist,
			Abandoned: rp.Abandoned,
		}
		if lp.Requires, err = stringsToConstraintMap(rp.Require); err != nil {
			return nil, err
		}
		if lp.Replaces, err = stringsToConstraintMap(rp.Replace); err != nil {
			return nil, err
		}
		if lp.Provides, err = stringsToConstraintMap(rp.Provide); err != nil {
			return nil, err
		}
		if lp.Conflicts, err = stringsToConstraintMap(rp.Conflict); err != nil {
			return nil, err
		}
		out = append(out, lp)
	}
	return out, nil
}

func stringsToConstraintMap(in map[string]string) (map[manifest.PackageID]version.Constraint, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[manifest.PackageID]version.Constraint, len(in))
	for name, raw := range in {
		id, err := manifest.ParsePackageID(name)
		if err != nil {
			return nil, fmt.Errorf("lockfile: package name %q: %w", name, err)
		}
		c, err := version.ParseConstraint(raw)
		if err != nil {
			return nil, fmt.Errorf("lockfile: constraint %q for %s: %w", raw, name, err)
		}
		out[id] = c
	}
	return out, nil
}
