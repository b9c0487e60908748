package orchestrator

import (
	"context"

	"github.com/libretto-pm/libretto/pkg/manifest"
	"github.com/libretto-pm/libretto/pkg/resolution"
)

// ScriptRunner invokes a manifest-declared hook's command list (spec.md
// §6: "post-install-cmd and friends are shelled out to, not
// reimplemented"). The orchestrator never runs a script itself; it only
// hands the hook name and the root manifest's command list to whatever
// collaborator the caller wires in.
type ScriptRunner interface {
	Run(ctx context.Context, hook string, cmds []string) error
}

// NoopScriptRunner discards every hook. It is the Orchestrator's default
// so the package can be exercised independently of a real shell
// collaborator, matching spec.md §6's framing of the script runner as an
// external collaborator rather than a core responsibility.
type NoopScriptRunner struct{}

func (NoopScriptRunner) Run(context.Context, string, []string) error { return nil }

// AutoloadGenerator builds the vendor autoloader (PSR-4/PSR-0/classmap/
// files, per manifest.Autoload) from a completed resolution. Like
// ScriptRunner, it is an external collaborator per spec.md §6 — the core
// only carries Autoload data through the universe and resolution, it
// never interprets it.
type AutoloadGenerator interface {
	Generate(ctx context.Context, root *manifest.Manifest, res *resolution.Resolution, vendorDir string) error
}

// NoopAutoloadGenerator skips autoload generation entirely.
type NoopAutoloadGenerator struct{}

func (NoopAutoloadGenerator) Generate(context.Context, *manifest.Manifest, *resolution.Resolution, string) error {
	return nil
}
