package solver

import (
	"fmt"

	"github.com/libretto-pm/libretto/pkg/manifest"
	"github.com/libretto-pm/libretto/pkg/version"
)

// Term is a PubGrub-style assertion about a package: either "package
// matches constraint" (Positive) or its negation. Incompatibilities are
// built from terms; a conflict is a set of terms that cannot all hold.
type Term struct {
	Package    manifest.PackageID
	Constraint version.Constraint
	Positive   bool
}

func (t Term) String() string {
	if t.Positive {
		return fmt.Sprintf("%s %s", t.Package, t.Constraint)
	}
	return fmt.Sprintf("not %s %s", t.Package, t.Constraint)
}

// Incompatibility is a set of terms that cannot all be simultaneously
// satisfied, together with a human-readable cause. The solver's choice
// function derives one whenever a candidate version's dependency can
// never be satisfied alongside the current partial assignment.
type Incompatibility struct {
	Terms []Term
	Cause string
}

func (i Incompatibility) String() string {
	s := i.Cause
	for _, t := range i.Terms {
		s += "\n  - " + t.String()
	}
	return s
}
