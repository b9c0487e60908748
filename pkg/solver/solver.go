package solver

import (
	"fmt"
	"sort"

	"github.com/libretto-pm/libretto/pkg/manifest"
	"github.com/libretto-pm/libretto/pkg/resolution"
	"github.com/libretto-pm/libretto/pkg/version"
)

// Mode selects the choice function's candidate ordering.
type Mode int

const (
	PreferHighest Mode = iota
	PreferLowest
	PreferStable
)

// Options configures one Solve call.
type Options struct {
	Mode             Mode
	MinStability     version.Stability
	StabilityFlags   map[manifest.PackageID]version.Stability
	Locked           map[manifest.PackageID]version.Version
	IncludeDev       bool
	ReplacementAware bool // not read by Solve; pass 2's replacement-awareness is an argument to solveOnce
}

// Solver runs the conflict-driven search described in spec §4.E over a
// Provider-backed universe.
type Solver struct {
	Provider Provider
	Options  Options

	// lastPlatform/lastDevSet stash the most recent solveOnce's side
	// tables; Solve always calls finish() immediately after a successful
	// solveOnce, so there is no concurrent-use hazard in reading them back.
	lastPlatform map[string]version.Constraint
	lastDevSet   map[manifest.PackageID]bool
}

// New returns a Solver bound to a dependency provider and options.
func New(p Provider, opts Options) *Solver {
	return &Solver{Provider: p, Options: opts}
}

// rootID is the synthetic package identity standing in for the
// manifest root itself, so that root-level replace/provide/conflict
// declarations fall out of the same machinery used for every other
// package (spec §3's "replace/provide/conflict at root").
var rootID = manifest.PackageID{Vendor: "__root__", Name: "project"}

type requirement struct {
	from       manifest.PackageID
	id         manifest.PackageID
	constraint version.Constraint
	dev        bool
}

// Solve runs the two-pass replacement-aware search described in spec
// §4.E: pass 1 discovers what gets selected with replacement-awareness
// off; if any selected version declares a `replaces` target, pass 2 runs
// in-memory (no refetch) with that target set elided from every
// dependency map.
func (s *Solver) Solve(root *manifest.Manifest) (*resolution.Resolution, error) {
	pass1, err := s.solveOnce(root, false, nil)
	if err != nil {
		return nil, err
	}

	replaced := collectReplaced(pass1)
	if len(replaced) == 0 {
		return s.finish(pass1)
	}

	pass2, err := s.solveOnce(root, true, replaced)
	if err != nil {
		return nil, err
	}
	return s.finish(pass2)
}

func collectReplaced(assigned map[manifest.PackageID]manifest.PackageVersion) map[manifest.PackageID]bool {
	out := map[manifest.PackageID]bool{}
	for _, pv := range assigned {
		for target := range pv.Replaces {
			out[target] = true
		}
	}
	return out
}

func (s *Solver) solveOnce(root *manifest.Manifest, replacementAware bool, replacedSet map[manifest.PackageID]bool) (map[manifest.PackageID]manifest.PackageVersion, error) {
	rootRecord := manifest.PackageVersion{
		ID:          rootID,
		Requires:    root.Require,
		RequiresDev: root.RequireDev,
		Replaces:    root.Replace,
		Provides:    root.Provide,
		Conflicts:   root.Conflict,
	}

	assigned := map[manifest.PackageID]manifest.PackageVersion{rootID: rootRecord}
	devSet := map[manifest.PackageID]bool{}
	platform := map[string]version.Constraint{}
	var derivation []Incompatibility

	pending := make([]requirement, 0, len(root.Require)+len(root.RequireDev))
	for id, c := range root.Require {
		pending = append(pending, requirement{from: rootID, id: id, constraint: c})
	}
	if s.Options.IncludeDev {
		for id, c := range root.RequireDev {
			pending = append(pending, requirement{from: rootID, id: id, constraint: c, dev: true})
		}
	}
	sortPending(pending)

	ok := s.assign(pending, assigned, devSet, platform, replacementAware, replacedSet, &derivation)
	if !ok {
		return nil, &ConflictError{Derivation: derivation}
	}

	delete(assigned, rootID)
	s.lastPlatform = platform
	s.lastDevSet = devSet
	return assigned, nil
}

func sortPending(p []requirement) {
	sort.Slice(p, func(i, j int) bool { return p[i].id.String() < p[j].id.String() })
}

func (s *Solver) assign(pending []requirement, assigned map[manifest.PackageID]manifest.PackageVersion, devSet map[manifest.PackageID]bool, platform map[string]version.Constraint, replacementAware bool, replacedSet map[manifest.PackageID]bool, derivation *[]Incompatibility) bool {
	if len(pending) == 0 {
		return true
	}
	r := pending[0]
	rest := pending[1:]

	if manifest.IsPlatform(r.id.String()) {
		if existing, ok := platform[r.id.String()]; ok {
			platform[r.id.String()] = version.Constraint{Range: existing.Range.Intersect(r.constraint.Range)}
		} else {
			platform[r.id.String()] = r.constraint
		}
		return s.assign(rest, assigned, devSet, platform, replacementAware, replacedSet, derivation)
	}

	if replacementAware && replacedSet[r.id] {
		return s.assign(rest, assigned, devSet, platform, replacementAware, replacedSet, derivation)
	}

	if existing, ok := assigned[r.id]; ok {
		if !r.constraint.Matches(existing.Version) {
			*derivation = append(*derivation, Incompatibility{
				Terms: []Term{
					{Package: r.id, Constraint: r.constraint, Positive: true},
				},
				Cause: fmt.Sprintf("%s requires %s %s, but %s %s is already selected",
					r.from, r.id, r.constraint.Raw(), r.id, existing.Version),
			})
			return false
		}
		return s.assign(rest, assigned, devSet, platform, replacementAware, replacedSet, derivation)
	}

	entry, found := s.Provider.GetPackage(r.id)
	if !found || len(entry.Versions) == 0 {
		if r.from == rootID {
			*derivation = append(*derivation, Incompatibility{
				Terms: []Term{{Package: r.id, Constraint: r.constraint, Positive: true}},
				Cause: fmt.Sprintf("root requires %s, but no repository provides it", r.id),
			})
			return false
		}
		// Not-found for a transitive dependency is "no versions
		// available", fed back into the solver as a normal failure to
		// satisfy, per spec §7.
		*derivation = append(*derivation, Incompatibility{
			Terms: []Term{{Package: r.id, Constraint: r.constraint, Positive: true}},
			Cause: fmt.Sprintf("%s requires %s %s, but it has no available versions", r.from, r.id, r.constraint.Raw()),
		})
		return false
	}

	candidates := s.choiceCandidates(entry, r.id, r.constraint)
	if len(candidates) == 0 {
		*derivation = append(*derivation, Incompatibility{
			Terms: []Term{{Package: r.id, Constraint: r.constraint, Positive: true}},
			Cause: fmt.Sprintf("%s requires %s %s, but no version of %s satisfies it", r.from, r.id, r.constraint.Raw(), r.id),
		})
		return false
	}

	for _, v := range candidates {
		pv, ok := versionRecord(s.Provider, r.id, v)
		if !ok {
			continue
		}
		if !compatibleWithAssigned(r.id, pv, assigned) {
			continue
		}

		assigned[r.id] = pv
		if r.dev {
			devSet[r.id] = true
		}

		deps := dependencyFunction(pv, replacementAware)
		next := make([]requirement, 0, len(rest)+len(deps))
		next = append(next, rest...)
		for did, dc := range deps {
			next = append(next, requirement{from: r.id, id: did, constraint: dc})
		}
		sortPending(next[len(rest):])

		if s.assign(next, assigned, devSet, platform, replacementAware, replacedSet, derivation) {
			return true
		}

		delete(assigned, r.id)
		if r.dev {
			delete(devSet, r.id)
		}
	}

	*derivation = append(*derivation, Incompatibility{
		Terms: []Term{{Package: r.id, Constraint: r.constraint, Positive: true}},
		Cause: fmt.Sprintf("exhausted every candidate version of %s for constraint %s required by %s", r.id, r.constraint.Raw(), r.from),
	})
	return false
}

// dependencyFunction returns a version's requires, with platform
// pseudo-packages left in (they're filtered in assign, since the
// platform map needs to see the raw constraint) and, when
// replacement-awareness is enabled, its own replace targets pruned out
// so a replaced package is never independently required by its
// replacer's own dependency set.
func dependencyFunction(pv manifest.PackageVersion, replacementAware bool) map[manifest.PackageID]version.Constraint {
	if !replacementAware || len(pv.Replaces) == 0 {
		return pv.Requires
	}
	out := make(map[manifest.PackageID]version.Constraint, len(pv.Requires))
	for id, c := range pv.Requires {
		if _, replaced := pv.Replaces[id]; replaced {
			continue
		}
		out[id] = c
	}
	return out
}

func compatibleWithAssigned(id manifest.PackageID, pv manifest.PackageVersion, assigned map[manifest.PackageID]manifest.PackageVersion) bool {
	for cid, cc := range pv.Conflicts {
		if av, ok := assigned[cid]; ok && cc.Matches(av.Version) {
			return false
		}
	}
	for aid, av := range assigned {
		if aid == id {
			continue
		}
		if cc, ok := av.Conflicts[id]; ok && cc.Matches(pv.Version) {
			return false
		}
	}
	return true
}

// choiceCandidates implements spec §4.E's choice function: versions
// whose stability meets the floor, restricted to the incoming range,
// sorted per Mode, with a pre-locked in-range version always first.
func (s *Solver) choiceCandidates(entry *manifest.Entry, id manifest.PackageID, c version.Constraint) []version.Version {
	floor := s.Options.MinStability
	if sf, ok := s.Options.StabilityFlags[id]; ok {
		floor = sf
	}

	var out []version.Version
	for _, pv := range entry.Versions {
		if !pv.Version.Stability.AtLeast(floor) {
			continue
		}
		if !c.Matches(pv.Version) {
			continue
		}
		out = append(out, pv.Version)
	}

	switch s.Options.Mode {
	case PreferLowest:
		sort.Slice(out, func(i, j int) bool { return version.Less(out[i], out[j]) })
	case PreferStable:
		sort.Slice(out, func(i, j int) bool {
			si, sj := out[i].Stability, out[j].Stability
			if si != sj {
				return si > sj
			}
			return version.Less(out[j], out[i])
		})
	default: // PreferHighest
		sort.Slice(out, func(i, j int) bool { return version.Less(out[j], out[i]) })
	}

	if locked, ok := s.Options.Locked[id]; ok {
		for i, v := range out {
			if version.Equal(v, locked) {
				out[0], out[i] = out[i], out[0]
				break
			}
		}
	}
	return out
}

// finish converts a successful solveOnce assignment into a Resolution,
// building the dependency graph and validating spec §3's invariants.
func (s *Solver) finish(assigned map[manifest.PackageID]manifest.PackageVersion) (*resolution.Resolution, error) {
	res := resolution.New()
	for id, pv := range assigned {
		res.Selected[id] = pv
	}
	for id := range s.lastDevSet {
		res.DevSet[id] = true
	}
	for name, c := range s.lastPlatform {
		res.PlatformRequirements[name] = c
	}

	for id := range assigned {
		res.Graph.AddNode(id)
	}
	for id, pv := range assigned {
		from := res.Graph.Index[id]
		for depID, c := range pv.Requires {
			if manifest.IsPlatform(depID.String()) {
				continue
			}
			target := resolveTarget(depID, assigned)
			if target == (manifest.PackageID{}) {
				continue
			}
			to := res.Graph.AddNode(target)
			res.Graph.AddEdge(from, to, c)
		}
	}

	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

func resolveTarget(id manifest.PackageID, assigned map[manifest.PackageID]manifest.PackageVersion) manifest.PackageID {
	if _, ok := assigned[id]; ok {
		return id
	}
	for candidate, pv := range assigned {
		if c, ok := pv.Replaces[id]; ok && c.Matches(assigned[candidate].Version) {
			return candidate
		}
	}
	return manifest.PackageID{}
}
