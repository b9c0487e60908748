// Package version implements the canonical version and constraint values
// described by the Composer-compatible manifest/lock wire formats: a
// 4-tuple (major, minor, patch, preview) plus a stability tag, and a
// union-typed Constraint compiled to a normalized range form.
//
// Grounded on golang-dep/gps's split between an immutable Version value
// type and a Constraint interface with a Matches predicate, generalized
// here to Composer's richer constraint grammar (caret/tilde/wildcard/
// hyphen-range/logical-OR) which has no direct analogue in gps or in any
// semver library present in the retrieved example pack.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is an immutable, comparable value. The zero Version is not
// meaningful; use Parse or New to construct one.
type Version struct {
	Major, Minor, Patch int
	Stability           Stability
	PreviewCounter      int
	raw                 string
}

// New builds a plain stable version, useful for tests and defaults.
func New(major, minor, patch int) Version {
	return Version{Major: major, Minor: minor, Patch: patch, Stability: StabilityStable}
}

// Raw returns the original string this Version was parsed from, or its
// normalized rendering if it was constructed programmatically. Round-trip
// lossless parsing is a spec invariant: Raw always re-parses to an
// equivalent Version.
func (v Version) Raw() string {
	if v.raw != "" {
		return v.raw
	}
	return v.String()
}

// String renders the normalized form: "v" prefixes are stripped, missing
// trailing components default to 0, and pre-release/stability suffixes
// are appended as "-stability[counter]" (e.g. "1.0.0-rc1").
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Stability == StabilityStable {
		return s
	}
	if v.PreviewCounter > 0 {
		return fmt.Sprintf("%s-%s%d", s, v.Stability, v.PreviewCounter)
	}
	return fmt.Sprintf("%s-%s", s, v.Stability)
}

// Parse normalizes and parses a Composer-style version string:
// "v1.2.3" ≡ "1.2.3", "1" ≡ "1.0.0", "1.2" ≡ "1.2.0", with an optional
// "-dev"/"-alpha.N"/"-beta.N"/"-rc.N"/"-patch.N" suffix.
//
// Parse is total over syntactically plausible input: if nothing sensible
// can be extracted, the zero Version with an empty core is returned along
// with an error; callers in the solver/constraint layer never propagate
// parse failures as hard errors (spec: constraint parsing is total, a
// parse failure is equivalent to the empty set, not a fatal error).
func Parse(s string) (Version, error) {
	raw := s
	t := strings.TrimPrefix(strings.TrimSpace(s), "v")
	if t == "" {
		return Version{}, fmt.Errorf("version: empty string")
	}

	core := t
	var suffix string
	if i := strings.IndexAny(t, "-+"); i >= 0 {
		core = t[:i]
		suffix = t[i+1:]
	}

	parts := strings.Split(core, ".")
	if len(parts) > 4 {
		return Version{}, fmt.Errorf("version: too many components in %q", s)
	}
	nums := make([]int, 4)
	for i, p := range parts {
		if p == "" {
			return Version{}, fmt.Errorf("version: empty component in %q", s)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("version: non-numeric component %q in %q", p, s)
		}
		nums[i] = n
	}

	v := Version{Major: nums[0], Minor: nums[1], Patch: nums[2], Stability: StabilityStable, raw: raw}
	if len(parts) == 4 {
		v.PreviewCounter = nums[3]
	}

	if suffix != "" {
		stab, counter := splitStabilitySuffix(suffix)
		v.Stability = stab
		v.PreviewCounter = counter
	}

	return v, nil
}

// MustParse is Parse but panics on error; intended for constants in
// tests and fixtures.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func splitStabilitySuffix(suffix string) (Stability, int) {
	suffix = strings.ToLower(suffix)
	name := suffix
	counter := 0
	if i := strings.IndexAny(suffix, ".-"); i >= 0 {
		name = suffix[:i]
		if n, err := strconv.Atoi(suffix[i+1:]); err == nil {
			counter = n
		}
	} else {
		// "rc1", "alpha2" style: split trailing digits from the name.
		j := len(suffix)
		for j > 0 && suffix[j-1] >= '0' && suffix[j-1] <= '9' {
			j--
		}
		if j < len(suffix) {
			if n, err := strconv.Atoi(suffix[j:]); err == nil {
				counter = n
			}
			name = suffix[:j]
		}
	}
	return ParseStability(name), counter
}

// Compare orders versions lexicographically on (major, minor, patch),
// then by stability (dev < alpha < beta < rc < stable), then by preview
// counter. Returns -1, 0, or 1.
func Compare(a, b Version) int {
	if c := cmpInt(a.Major, b.Major); c != 0 {
		return c
	}
	if c := cmpInt(a.Minor, b.Minor); c != 0 {
		return c
	}
	if c := cmpInt(a.Patch, b.Patch); c != 0 {
		return c
	}
	if c := cmpInt(int(a.Stability), int(b.Stability)); c != 0 {
		return c
	}
	return cmpInt(a.PreviewCounter, b.PreviewCounter)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts strictly before b.
func Less(a, b Version) bool { return Compare(a, b) < 0 }

// Equal reports value equality, ignoring the original raw string.
func Equal(a, b Version) bool { return Compare(a, b) == 0 }

// MarshalText implements encoding.TextMarshaler so a Version serializes
// as its Raw string in JSON, matching Composer's own lock-file wire
// format (a plain version string, not a decomposed object).
func (v Version) MarshalText() ([]byte, error) { return []byte(v.Raw()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
