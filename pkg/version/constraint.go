package version

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Constraint is a compiled, normalized boolean combination of version
// predicates. It is always lossless-round-trippable via its Raw string;
// Raw is preserved even when parsing fails (total parsing, spec §4.A).
type Constraint struct {
	raw   string
	Range Range
}

// Matches reports whether v satisfies the constraint.
func (c Constraint) Matches(v Version) bool { return c.Range.Contains(v) }

// IsEmpty reports whether the constraint matches no version. Callers
// needing strictness on malformed input check this, per spec §4.A: a
// parse failure yields an empty-set constraint rather than an error.
func (c Constraint) IsEmpty() bool { return c.Range.IsEmpty() }

// Raw returns the original constraint string exactly as supplied.
func (c Constraint) Raw() string { return c.raw }

// String returns Raw when it is set, and otherwise renders the
// normalized range as a comparator expression; used
// by the lock-file serializer and by round-trip tests.
func (c Constraint) String() string {
	if c.raw != "" {
		return c.raw
	}
	return c.Range.String()
}

func (r Range) String() string {
	if r.IsEmpty() {
		return "<empty>"
	}
	parts := make([]string, 0, len(r.intervals))
	for _, iv := range r.intervals {
		switch {
		case iv.lo.isInf && iv.hi.isInf:
			parts = append(parts, "*")
		case !iv.lo.isInf && !iv.hi.isInf && Equal(iv.lo.v, iv.hi.v) && iv.lo.inclusive && iv.hi.inclusive:
			parts = append(parts, iv.lo.v.String())
		default:
			var b strings.Builder
			if !iv.lo.isInf {
				if iv.lo.inclusive {
					b.WriteString(">=")
				} else {
					b.WriteString(">")
				}
				b.WriteString(iv.lo.v.String())
			}
			if !iv.hi.isInf {
				if b.Len() > 0 {
					b.WriteString(",")
				}
				if iv.hi.inclusive {
					b.WriteString("<=")
				} else {
					b.WriteString("<")
				}
				b.WriteString(iv.hi.v.String())
			}
			parts = append(parts, b.String())
		}
	}
	return strings.Join(parts, "|")
}

// Equal reports whether two constraints describe the same set of
// versions, per spec §3: equality is defined on compiled range sets.
func (c Constraint) Equal(o Constraint) bool { return c.Range.Equal(o.Range) }

// MarshalText implements encoding.TextMarshaler, serializing a
// Constraint as its original Raw string (the lock-file format stores
// requirement strings verbatim, the same way Composer does).
func (c Constraint) MarshalText() ([]byte, error) { return []byte(c.Raw()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Parse failures are
// surfaced to the caller rather than silently swallowed, since an
// unmarshaled Constraint is normally read back from a lock-file this
// system itself wrote.
func (c *Constraint) UnmarshalText(b []byte) error {
	parsed, err := ParseConstraint(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

var comparatorRE = regexp.MustCompile(`^(>=|<=|>|<|=)\s*(.+)$`)

// Any returns the constraint matching every version.
func Any() Constraint { return Constraint{raw: "*", Range: All} }

// ParseConstraint parses the Composer constraint grammar: exact, caret
// (^X.Y.Z), tilde (~X.Y.Z), comparator (>= <= > < =), wildcard (*, X.*,
// X.Y.*), hyphen ranges (A - B), and boolean combinations (comma = AND
// within a clause, pipe = OR across clauses).
//
// Parsing never fails outright: on any unrecognized token the returned
// Constraint has an empty Range (matches nothing) and a non-nil error,
// matching spec §4.A's "total" parsing contract. Callers that need to
// short-circuit on malformed manifests check IsEmpty() and surface the
// returned error as a KindInput failure; callers in the solver's hot
// path may ignore the error and rely on IsEmpty/Matches never panicking.
func ParseConstraint(s string) (Constraint, error) {
	raw := s
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return Constraint{raw: raw, Range: All}, nil
	}

	var rng Range
	var firstErr error
	clauses := strings.Split(s, "||")
	if len(clauses) == 1 {
		clauses = splitOrPipe(s)
	}
	for i, clause := range clauses {
		cr, err := parseClause(strings.TrimSpace(clause))
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if i == 0 {
			rng = cr
		} else {
			rng = rng.Union(cr)
		}
	}
	if firstErr != nil {
		return Constraint{raw: raw, Range: Empty}, firstErr
	}
	return Constraint{raw: raw, Range: rng}, nil
}

// splitOrPipe splits on a single "|" where "||" wasn't used, tolerating
// Composer's informal single-pipe OR syntax seen in the wild.
func splitOrPipe(s string) []string {
	return strings.Split(s, "|")
}

func parseClause(clause string) (Range, error) {
	if clause == "" || clause == "*" {
		return All, nil
	}
	terms := strings.Split(clause, ",")
	var out Range
	var firstErr error
	for i, t := range terms {
		t = strings.TrimSpace(t)
		r, err := parseTerm(t)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if i == 0 {
			out = r
		} else {
			out = out.Intersect(r)
		}
	}
	return out, firstErr
}

func parseTerm(t string) (Range, error) {
	if t == "" {
		return Empty, errEmptyTerm
	}
	if t == "*" {
		return All, nil
	}

	switch {
	case strings.HasPrefix(t, "^"):
		return parseCaret(t[1:])
	case strings.HasPrefix(t, "~"):
		return parseTilde(t[1:])
	}

	if m := comparatorRE.FindStringSubmatch(t); m != nil {
		v, err := Parse(m[2])
		if err != nil {
			return Empty, err
		}
		switch m[1] {
		case ">=":
			return atLeast(v, true), nil
		case ">":
			return atLeast(v, false), nil
		case "<=":
			return atMost(v, true), nil
		case "<":
			return atMost(v, false), nil
		case "=":
			return exact(v), nil
		}
	}

	if strings.Contains(t, " - ") {
		parts := strings.SplitN(t, " - ", 2)
		lo, err := Parse(strings.TrimSpace(parts[0]))
		if err != nil {
			return Empty, err
		}
		hi, err := Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			return Empty, err
		}
		return single(interval{lo: bound{v: lo, inclusive: true}, hi: bound{v: hi, inclusive: true}}), nil
	}

	if strings.HasSuffix(t, ".*") || strings.HasSuffix(t, ".x") || strings.HasSuffix(t, ".X") {
		base := strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(t, ".*"), ".x"), ".X")
		return parseWildcard(base)
	}

	v, err := Parse(t)
	if err != nil {
		return Empty, err
	}
	return exact(v), nil
}

var errEmptyTerm = errors.New("version: empty constraint term")

// parseWildcard expands "N", "N.M" into the implied ">=N.M.0, <N.(M+1).0"
// range, and a bare major "N" into ">=N.0.0, <(N+1).0.0".
func parseWildcard(base string) (Range, error) {
	parts := strings.Split(base, ".")
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Empty, err
		}
		nums[i] = n
	}
	switch len(nums) {
	case 1:
		lo := New(nums[0], 0, 0)
		hi := New(nums[0]+1, 0, 0)
		return betweenInclusiveExclusive(lo, hi), nil
	case 2:
		lo := New(nums[0], nums[1], 0)
		hi := New(nums[0], nums[1]+1, 0)
		return betweenInclusiveExclusive(lo, hi), nil
	default:
		v, err := Parse(base)
		if err != nil {
			return Empty, err
		}
		return exact(v), nil
	}
}

// parseCaret implements Composer's ^X.Y.Z: allows movement up to the
// next version that would break backward compatibility. For 0.x this
// means only up to the next minor, matching npm/Composer semantics.
func parseCaret(s string) (Range, error) {
	v, err := Parse(s)
	if err != nil {
		return Empty, err
	}
	var upper Version
	switch {
	case v.Major > 0:
		upper = New(v.Major+1, 0, 0)
	case v.Minor > 0:
		upper = New(0, v.Minor+1, 0)
	default:
		upper = New(0, 0, v.Patch+1)
	}
	return betweenInclusiveExclusive(v, upper), nil
}

// parseTilde implements Composer's ~X.Y.Z: allows only patch-level
// movement (or minor-level, if only major.minor was given).
func parseTilde(s string) (Range, error) {
	v, err := Parse(s)
	if err != nil {
		return Empty, err
	}
	parts := strings.Split(strings.TrimPrefix(v.Raw(), "v"), ".")
	core := parts
	if i := strings.IndexAny(v.Raw(), "-+"); i >= 0 {
		core = strings.Split(strings.TrimPrefix(v.Raw()[:i], "v"), ".")
	}
	var upper Version
	if len(core) <= 2 {
		upper = New(v.Major+1, 0, 0)
	} else {
		upper = New(v.Major, v.Minor+1, 0)
	}
	return betweenInclusiveExclusive(v, upper), nil
}
