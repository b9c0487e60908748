package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/libretto-pm/libretto/pkg/version"
)

// FileName is the canonical manifest file name.
const FileName = "manifest.json"

// RepositoryType enumerates the repository kinds a manifest may declare.
type RepositoryType string

const (
	RepositoryComposer RepositoryType = "composer"
	RepositoryVCS      RepositoryType = "vcs"
	RepositoryPath     RepositoryType = "path"
	RepositoryPackage  RepositoryType = "package"
	RepositoryArtifact RepositoryType = "artifact"
)

// Repository is one entry of the manifest's ordered "repositories" list.
type Repository struct {
	Type RepositoryType
	URL  string
	// Options holds type-specific extras (e.g. "canonical", "only",
	// "exclude" for composer-type repos). Parse does not fill it: keys of
	// a repository entry other than "type" and "url" are dropped.
	Options map[string]interface{}
}

// Manifest is the project root's declared dependency and build
// configuration: requires, requires-dev, min-stability, prefer-stable,
// platform-overrides, repositories, root-level replace/provide/conflict,
// autoload declarations, and script hooks.
type Manifest struct {
	Name        string
	Description string
	Type        string
	License     []string

	Require     map[PackageID]version.Constraint
	RequireDev  map[PackageID]version.Constraint
	Replace     map[PackageID]version.Constraint
	Provide     map[PackageID]version.Constraint
	Conflict    map[PackageID]version.Constraint
	Suggest     map[PackageID]string

	MinimumStability version.Stability
	PreferStable     bool
	// StabilityFlags is a supplemental, per-package minimum-stability
	// override (original_source/libretto-lockfile/src/types.rs), distinct
	// from the global MinimumStability.
	StabilityFlags map[PackageID]version.Stability

	// Platform overrides a pseudo-package's assumed version (e.g.
	// {"php": "8.2.0"}) rather than probing the running interpreter.
	Platform map[string]string

	Repositories []Repository

	Autoload   Autoload
	AutoloadDev Autoload

	// Scripts maps a hook name (e.g. "post-install-cmd") to one or more
	// command strings. The core never executes these; it only carries
	// them through to the external script runner (spec §6).
	Scripts map[string][]string

	// Extra is the opaque "extra" bag: the one place a raw JSON value
	// survives into the value-typed Manifest, per spec §9's design note.
	Extra map[string]interface{}

	Config map[string]interface{}
}

type rawManifest struct {
	Name        string                       `json:"name,omitempty"`
	Description string                       `json:"description,omitempty"`
	Type        string                       `json:"type,omitempty"`
	License     json.RawMessage              `json:"license,omitempty"`
	Require     map[string]string            `json:"require,omitempty"`
	RequireDev  map[string]string            `json:"require-dev,omitempty"`
	Replace     map[string]string            `json:"replace,omitempty"`
	Provide     map[string]string            `json:"provide,omitempty"`
	Conflict    map[string]string            `json:"conflict,omitempty"`
	Suggest     map[string]string            `json:"suggest,omitempty"`
	MinStability string                      `json:"minimum-stability,omitempty"`
	PreferStable bool                        `json:"prefer-stable,omitempty"`
	StabilityFlags map[string]string         `json:"stability-flags,omitempty"`
	Platform    map[string]string            `json:"platform,omitempty"`
	Repositories []rawRepository             `json:"repositories,omitempty"`
	Autoload    json.RawMessage              `json:"autoload,omitempty"`
	AutoloadDev json.RawMessage              `json:"autoload-dev,omitempty"`
	Scripts     map[string]json.RawMessage   `json:"scripts,omitempty"`
	Extra       map[string]interface{}       `json:"extra,omitempty"`
	Config      map[string]interface{}       `json:"config,omitempty"`
}

type rawRepository struct {
	Type    string                 `json:"type"`
	URL     string                 `json:"url"`
	Options map[string]interface{} `json:"-"`
}

// Parse decodes a manifest.json document into a Manifest.
func Parse(data []byte) (*Manifest, error) {
	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}

	m := &Manifest{
		Name:             raw.Name,
		Description:      raw.Description,
		Type:             raw.Type,
		Require:          map[PackageID]version.Constraint{},
		RequireDev:       map[PackageID]version.Constraint{},
		Replace:          map[PackageID]version.Constraint{},
		Provide:          map[PackageID]version.Constraint{},
		Conflict:         map[PackageID]version.Constraint{},
		Suggest:          map[PackageID]string{},
		MinimumStability: version.ParseStability(raw.MinStability),
		PreferStable:     raw.PreferStable,
		StabilityFlags:   map[PackageID]version.Stability{},
		Platform:         raw.Platform,
		Extra:            raw.Extra,
		Config:           raw.Config,
		Scripts:          map[string][]string{},
	}
	if raw.MinStability == "" {
		m.MinimumStability = version.StabilityStable
	}

	if err := decodeConstraintMap(raw.Require, m.Require); err != nil {
		return nil, err
	}
	if err := decodeConstraintMap(raw.RequireDev, m.RequireDev); err != nil {
		return nil, err
	}
	if err := decodeConstraintMap(raw.Replace, m.Replace); err != nil {
		return nil, err
	}
	if err := decodeConstraintMap(raw.Provide, m.Provide); err != nil {
		return nil, err
	}
	if err := decodeConstraintMap(raw.Conflict, m.Conflict); err != nil {
		return nil, err
	}
	for n, v := range raw.Suggest {
		id, err := ParsePackageID(n)
		if err != nil {
			continue
		}
		m.Suggest[id] = v
	}
	for n, s := range raw.StabilityFlags {
		id, err := ParsePackageID(n)
		if err != nil {
			continue
		}
		m.StabilityFlags[id] = version.ParseStability(s)
	}

	for _, r := range raw.Repositories {
		m.Repositories = append(m.Repositories, Repository{
			Type: RepositoryType(r.Type),
			URL:  r.URL,
		})
	}

	for hook, raw := range raw.Scripts {
		cmds, err := decodeStringOrSlice(raw)
		if err != nil {
			return nil, fmt.Errorf("manifest: scripts.%s: %w", hook, err)
		}
		m.Scripts[hook] = cmds
	}

	m.Autoload = decodeAutoload(raw.Autoload)
	m.AutoloadDev = decodeAutoload(raw.AutoloadDev)

	if len(raw.License) > 0 {
		lic, err := decodeStringOrSlice(raw.License)
		if err != nil {
			return nil, fmt.Errorf("manifest: license: %w", err)
		}
		m.License = lic
	}

	return m, nil
}

func decodeConstraintMap(raw map[string]string, out map[PackageID]version.Constraint) error {
	for n, c := range raw {
		// Platform pseudo-packages ("php", "ext-json", ...) parse to a
		// vendor-less PackageID and flow through the solver's pending
		// queue like any other requirement; it diverts them into
		// Resolution.PlatformRequirements instead of resolving them.
		id, err := ParsePackageID(n)
		if err != nil {
			continue
		}
		constraint, _ := version.ParseConstraint(c)
		out[id] = constraint
	}
	return nil
}

func decodeStringOrSlice(raw json.RawMessage) ([]string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, err
	}
	return many, nil
}

func decodeAutoload(raw json.RawMessage) Autoload {
	if len(raw) == 0 {
		return Autoload{}
	}
	var a struct {
		PSR4     map[string]json.RawMessage `json:"psr-4"`
		PSR0     map[string]json.RawMessage `json:"psr-0"`
		Classmap []string                   `json:"classmap"`
		Files    []string                   `json:"files"`
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return Autoload{}
	}
	out := Autoload{
		PSR4:     map[string][]string{},
		PSR0:     map[string][]string{},
		Classmap: a.Classmap,
		Files:    a.Files,
	}
	for ns, v := range a.PSR4 {
		out.PSR4[ns], _ = decodeStringOrSlice(v)
	}
	for ns, v := range a.PSR0 {
		out.PSR0[ns], _ = decodeStringOrSlice(v)
	}
	return out
}

// PlatformOverride returns the configured version override for a
// platform pseudo-package (e.g. "php" -> "8.2.0"), and whether one was
// set.
func (m *Manifest) PlatformOverride(name string) (string, bool) {
	v, ok := m.Platform[name]
	return v, ok
}

// RootRequirements returns require and, if includeDev, require-dev
// merged into one map — used by the orchestrator to pick the root ids
// that seed the fetch driver; the solver reads Require and RequireDev
// directly.
func (m *Manifest) RootRequirements(includeDev bool) map[PackageID]version.Constraint {
	out := make(map[PackageID]version.Constraint, len(m.Require)+len(m.RequireDev))
	for k, v := range m.Require {
		out[k] = v
	}
	if includeDev {
		for k, v := range m.RequireDev {
			out[k] = v
		}
	}
	return out
}

// ContentHashInputs returns the canonically-ordered struct whose JSON
// encoding feeds the lock-file content-hash (spec §3): requires,
// requires-dev, min-stability, prefer-stable, prefer-lowest, platform,
// platform-overrides, with sorted keys and no whitespace.
func (m *Manifest) ContentHashInputs(preferLowest bool) map[string]interface{} {
	req := map[string]string{}
	for id, c := range m.Require {
		req[id.String()] = c.Raw()
	}
	reqDev := map[string]string{}
	for id, c := range m.RequireDev {
		reqDev[id.String()] = c.Raw()
	}
	out := map[string]interface{}{
		"require":            req,
		"require-dev":        reqDev,
		"minimum-stability":  m.MinimumStability.String(),
		"prefer-stable":      m.PreferStable,
		"prefer-lowest":      preferLowest,
		"platform":           m.Platform,
		"platform-overrides": m.Platform,
	}
	return out
}

// CanonicalJSON encodes v with sorted map keys and no extraneous
// whitespace, the form the content-hash is computed over.
func CanonicalJSON(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}
