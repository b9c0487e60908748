package lockfile

import (
	"github.com/libretto-pm/libretto/pkg/manifest"
	"github.com/libretto-pm/libretto/pkg/version"
)

// rawPackage is the Composer-wire JSON shape for one locked package,
// mirroring packages.json's own per-version object (spec §3).
type rawPackage struct {
	Name      string                        `json:"name"`
	Version   string                        `json:"version"`
	Source    *manifest.Source              `json:"source,omitempty"`
	Dist      *manifest.Dist                `json:"dist,omitempty"`
	Require   map[string]string             `json:"require,omitempty"`
	Replace   map[string]string             `json:"replace,omitempty"`
	Provide   map[string]string             `json:"provide,omitempty"`
	Conflict  map[string]string             `json:"conflict,omitempty"`
	Abandoned *string                       `json:"abandoned,omitempty"`
}

type rawAlias struct {
	Package string `json:"package"`
	Version string `json:"version"`
	Alias   string `json:"alias"`
}

type rawLockFile struct {
	SchemaVersion    int               `json:"_schema-version"`
	ContentHash      string            `json:"content-hash"`
	Packages         []rawPackage      `json:"packages"`
	PackagesDev      []rawPackage      `json:"packages-dev"`
	Aliases          []rawAlias        `json:"aliases,omitempty"`
	MinimumStability string            `json:"minimum-stability"`
	StabilityFlags   map[string]string `json:"stability-flags,omitempty"`
	PreferStable     bool              `json:"prefer-stable"`
	Platform         map[string]string `json:"platform,omitempty"`
	PlatformDev      map[string]string `json:"platform-dev,omitempty"`
}

func toRawPackage(p LockedPackage) rawPackage {
	rp := rawPackage{
		Name:      p.ID.String(),
		Version:   p.Version.Raw(),
		Source:    p.Source,
		Dist:      p.Dist,
		Abandoned: p.Abandoned,
	}
	rp.Require = constraintMapToStrings(p.Requires)
	rp.Replace = constraintMapToStrings(p.Replaces)
	rp.Provide = constraintMapToStrings(p.Provides)
	rp.Conflict = constraintMapToStrings(p.Conflicts)
	return rp
}

func constraintMapToStrings(m map[manifest.PackageID]version.Constraint) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for id, c := range m {
		out[id.String()] = c.Raw()
	}
	return out
}

// toRaw converts a LockFile into its wire-shaped form for serialization.
func (lf *LockFile) toRaw() rawLockFile {
	raw := rawLockFile{
		SchemaVersion:    lf.SchemaVersion,
		ContentHash:      lf.ContentHash,
		MinimumStability: lf.MinimumStability,
		StabilityFlags:   lf.StabilityFlags,
		PreferStable:     lf.PreferStable,
		Platform:         lf.Platform,
	}
	raw.Packages = make([]rawPackage, 0, len(lf.Packages))
	for _, p := range lf.Packages {
		raw.Packages = append(raw.Packages, toRawPackage(p))
	}
	raw.PackagesDev = make([]rawPackage, 0, len(lf.PackagesDev))
	for _, p := range lf.PackagesDev {
		raw.PackagesDev = append(raw.PackagesDev, toRawPackage(p))
	}
	for _, a := range lf.Aliases {
		raw.Aliases = append(raw.Aliases, rawAlias{Version: a.Of.Raw(), Alias: a.As.Raw()})
	}
	return raw
}

// Marshal renders the lock file as deterministic, sorted-key canonical
// JSON (spec §3's "deterministic serialization" requirement).
func (lf *LockFile) Marshal() ([]byte, error) {
	return manifest.CanonicalJSON(lf.toRaw())
}
