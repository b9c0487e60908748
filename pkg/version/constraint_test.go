package version

import "testing"

func mustConstraint(t *testing.T, s string) Constraint {
	t.Helper()
	c, err := ParseConstraint(s)
	if err != nil {
		t.Fatalf("ParseConstraint(%q): %v", s, err)
	}
	return c
}

func TestCaretConstraint(t *testing.T) {
	c := mustConstraint(t, "^1.2.3")
	if !c.Matches(MustParse("1.2.3")) {
		t.Errorf("^1.2.3 should match 1.2.3")
	}
	if !c.Matches(MustParse("1.9.0")) {
		t.Errorf("^1.2.3 should match 1.9.0")
	}
	if c.Matches(MustParse("2.0.0")) {
		t.Errorf("^1.2.3 should not match 2.0.0")
	}
}

func TestCaretZeroMajor(t *testing.T) {
	c := mustConstraint(t, "^0.2.3")
	if !c.Matches(MustParse("0.2.9")) {
		t.Errorf("^0.2.3 should match 0.2.9")
	}
	if c.Matches(MustParse("0.3.0")) {
		t.Errorf("^0.2.3 should not match 0.3.0 (0.x caret only moves minor)")
	}
}

func TestTildeConstraint(t *testing.T) {
	c := mustConstraint(t, "~1.2.3")
	if !c.Matches(MustParse("1.2.9")) {
		t.Errorf("~1.2.3 should match 1.2.9")
	}
	if c.Matches(MustParse("1.3.0")) {
		t.Errorf("~1.2.3 should not match 1.3.0")
	}
}

func TestWildcardConstraint(t *testing.T) {
	c := mustConstraint(t, "2.*")
	explicit := mustConstraint(t, ">=2.0.0,<3.0.0")
	if !c.Range.Equal(explicit.Range) {
		t.Errorf("2.* should equal >=2.0.0,<3.0.0 exactly, got %s vs %s", c.Range, explicit.Range)
	}
}

func TestStarMatchesEverything(t *testing.T) {
	c := mustConstraint(t, "*")
	for _, s := range []string{"0.0.1", "1.0.0-dev", "999.999.999"} {
		if !c.Matches(MustParse(s)) {
			t.Errorf("* should match %s", s)
		}
	}
}

func TestBooleanCombination(t *testing.T) {
	c := mustConstraint(t, "^1.0 || ^2.0")
	if !c.Matches(MustParse("1.5.0")) || !c.Matches(MustParse("2.5.0")) {
		t.Errorf("OR clause should match both ranges")
	}
	if c.Matches(MustParse("3.0.0")) {
		t.Errorf("OR clause should not match out-of-range version")
	}
}

func TestParseFailureIsEmptySet(t *testing.T) {
	c, err := ParseConstraint("not-a-version")
	if err == nil {
		t.Fatalf("expected a parse error to be reported")
	}
	if !c.IsEmpty() {
		t.Errorf("malformed constraint must compile to the empty set, not panic or silently match everything")
	}
}

func TestRoundTripPreservesRaw(t *testing.T) {
	raw := "^1.2.3"
	c := mustConstraint(t, raw)
	if c.Raw() != raw {
		t.Errorf("Raw() = %q, want %q", c.Raw(), raw)
	}
}

func TestEqualityIsOnRangeSet(t *testing.T) {
	a := mustConstraint(t, ">=1.0.0,<2.0.0")
	b := mustConstraint(t, "^1.0.0")
	if !a.Equal(b) {
		t.Errorf("^1.0.0 and >=1.0.0,<2.0.0 should be equal constraints")
	}
}
