package solver

import "strings"

// ConflictError is returned when the universe is unsatisfiable. It
// carries the derivation tree — the chain of incompatibilities the
// solver accumulated — so the orchestrator can render a human-readable
// explanation naming the incompatible requirements and their origins
// (spec §4.E "Conflict reporting").
type ConflictError struct {
	Derivation []Incompatibility
}

func (e *ConflictError) Error() string {
	var b strings.Builder
	b.WriteString("no version of the requested packages satisfies every constraint:\n")
	for _, inc := range e.Derivation {
		b.WriteString(inc.String())
		b.WriteString("\n")
	}
	return b.String()
}
