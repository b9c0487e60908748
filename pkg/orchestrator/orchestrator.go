// Package orchestrator implements the top-level install_or_update
// pipeline (spec.md §4.K): load manifest and lock, decide whether the
// lock's own selections can be reused as-is, otherwise drive the fetch
// driver and solver, diff the result against the prior lock, persist
// the new lock atomically, materialize every selected package via the
// download pool or a VCS driver, and finally hand off to the external
// autoload generator and script runner.
//
// Grounded on golang-dep/cmd/dep/ensure.go's top-level command shape
// (load project, decide whether a fast path applies, solve, write,
// vendor) generalized from dep's CLI-flag-driven ensure into a mode-
// driven library entry point with no flag parsing of its own.
package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/libretto-pm/libretto/pkg/cache"
	"github.com/libretto-pm/libretto/pkg/config"
	"github.com/libretto-pm/libretto/pkg/download"
	"github.com/libretto-pm/libretto/pkg/fetch"
	"github.com/libretto-pm/libretto/pkg/lockfile"
	"github.com/libretto-pm/libretto/pkg/manifest"
	"github.com/libretto-pm/libretto/pkg/perr"
	"github.com/libretto-pm/libretto/pkg/resolution"
	"github.com/libretto-pm/libretto/pkg/solver"
	"github.com/libretto-pm/libretto/pkg/vcs"
	"github.com/libretto-pm/libretto/pkg/version"
)

// Mode selects the top-level operation, mirroring spec.md §4.K's
// install_or_update(mode) parameter exactly.
type Mode int

const (
	InstallFromLock Mode = iota
	UpdateAll
	UpdateSubset
	DryRun
)

// Request is one install_or_update invocation.
type Request struct {
	Mode Mode
	// Names restricts UpdateSubset to the named root requirements; it is
	// ignored for every other Mode.
	Names []string
	// IncludeDev controls whether require-dev is folded into the root
	// requirement set the solver sees.
	IncludeDev bool
}

// Orchestrator wires together every core component behind one
// entry point. Each collaborator is held as the narrow interface (or
// concrete type) the corresponding package already exports — the
// orchestrator itself adds no new abstraction over them, only
// sequencing.
type Orchestrator struct {
	ProjectRoot string
	Config      *config.Resolved

	Fetcher   fetch.EntryFetcher
	Cache     *cache.Cache
	SolveMode solver.Mode

	Downloads *download.Pool
	VCS       VCSFactory

	Scripts  ScriptRunner
	Autoload AutoloadGenerator

	Logger *slog.Logger
}

// VCSFactory resolves a manifest.Source's VCS type to a driver. The
// orchestrator doesn't construct vcs.Driver values itself — it defers
// to the caller (cmd/libretto) so the reference cache, credential
// broker, and SSH policy are configured once at startup and shared
// across every VCS-sourced package in a run.
type VCSFactory func(vcsType string) (vcs.Driver, error)

// New returns an Orchestrator with spec.md's stated defaults for the
// fields a caller commonly leaves unset.
func New(projectRoot string, cfg *config.Resolved) *Orchestrator {
	return &Orchestrator{
		ProjectRoot: projectRoot,
		Config:      cfg,
		SolveMode:   solver.PreferHighest,
		Scripts:     NoopScriptRunner{},
		Autoload:    NoopAutoloadGenerator{},
		Logger:      slog.Default(),
	}
}

// Run executes install_or_update against the project at o.ProjectRoot.
// now is injected rather than read from time.Now internally, matching
// pkg/cache and pkg/fetch's own now-as-parameter convention so cache
// freshness decisions stay deterministic under test.
func (o *Orchestrator) Run(ctx context.Context, now time.Time, req Request) (*Summary, error) {
	start := now
	wallStart := time.Now()
	root, err := o.loadManifest()
	if err != nil {
		return nil, err
	}

	lockPath := filepath.Join(o.ProjectRoot, lockfile.FileName)
	priorLock, err := loadLockIfPresent(lockPath)
	if err != nil {
		return nil, err
	}

	preferLowest := o.SolveMode == solver.PreferLowest
	currentHash, err := lockfile.ComputeContentHash(root, preferLowest)
	if err != nil {
		return nil, perr.Wrap(perr.KindInput, err, "orchestrator: compute content hash")
	}

	var res *resolution.Resolution
	var skippedSolve bool

	if req.Mode == InstallFromLock && priorLock != nil && priorLock.ContentHash == currentHash {
		o.Logger.Info("lock content-hash matches manifest; skipping fetch+solve", "hash", currentHash)
		res = priorLock.ToResolution()
		skippedSolve = true
	} else {
		res, err = o.fetchAndSolve(ctx, start, root, req, priorLock)
		if err != nil {
			return nil, err
		}
	}

	if err := res.Validate(); err != nil {
		return nil, perr.Wrap(perr.KindConflict, err, "orchestrator: resolution invariant violated")
	}

	newLock, err := lockfile.Build(res, root, preferLowest)
	if err != nil {
		return nil, perr.Wrap(perr.KindInput, err, "orchestrator: build lock file")
	}

	changes := diffLocks(priorLock, newLock)
	summary := &Summary{Mode: req.Mode, StartedAt: start}

	lockUnchanged := priorLock != nil && priorLock.ContentHash == newLock.ContentHash && !changes.Any()
	if !(skippedSolve && lockUnchanged && req.Mode == InstallFromLock) {
		if req.Mode != DryRun {
			data, err := newLock.Marshal()
			if err != nil {
				return nil, perr.Wrap(perr.KindInput, err, "orchestrator: marshal lock file")
			}
			if err := lockfile.AtomicWrite(lockPath, data); err != nil {
				return nil, perr.Wrap(perr.KindIntegrity, err, "orchestrator: write lock file")
			}
		}
	}
	summary.Changes = changes

	if req.Mode == DryRun {
		summary.FinishedAt = start.Add(time.Since(wallStart))
		return summary, nil
	}

	if ctx.Err() != nil {
		return summary, ctx.Err()
	}

	artifactResults, err := o.materialize(ctx, res)
	if err != nil {
		summary.Errors = append(summary.Errors, err)
		return summary, err
	}
	summary.Artifacts = artifactResults

	if err := o.Autoload.Generate(ctx, root, res, o.Config.VendorDir); err != nil {
		summary.Errors = append(summary.Errors, err)
	}
	if err := o.Scripts.Run(ctx, "post-install-cmd", root.Scripts["post-install-cmd"]); err != nil {
		summary.Errors = append(summary.Errors, err)
	}

	summary.FinishedAt = start.Add(time.Since(wallStart))
	return summary, nil
}

func (o *Orchestrator) loadManifest() (*manifest.Manifest, error) {
	path := filepath.Join(o.ProjectRoot, manifest.FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perr.Wrap(perr.KindInput, err, "orchestrator: read %s", path)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, perr.WithField(perr.Wrap(perr.KindInput, err, "orchestrator: parse %s", path), "manifest")
	}
	return m, nil
}

func loadLockIfPresent(path string) (*lockfile.LockFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, perr.Wrap(perr.KindInput, err, "orchestrator: read %s", path)
	}
	lf, err := lockfile.Parse(data)
	if err != nil {
		return nil, perr.Wrap(perr.KindInput, err, "orchestrator: parse %s", path)
	}
	return lf, nil
}

// fetchAndSolve drives the streaming fetch (D) then the solver (E),
// per spec.md §4.K step 3.
func (o *Orchestrator) fetchAndSolve(ctx context.Context, now time.Time, root *manifest.Manifest, req Request, priorLock *lockfile.LockFile) (*resolution.Resolution, error) {
	if o.Fetcher == nil {
		return nil, perr.New(perr.KindInput, "orchestrator: no registry fetcher configured")
	}
	driver := fetch.NewDriver(o.Fetcher, o.Cache)

	roots := rootRequirementIDs(root, req)
	universe, failures, err := driver.Fetch(ctx, now, roots)
	if err != nil {
		return nil, perr.Wrap(perr.KindNetwork, err, "orchestrator: fetch package universe")
	}
	for _, f := range failures {
		o.Logger.Warn("package fetch failure", "package", f.Package.String(), "hard", f.Hard, "error", f.Err)
	}

	provider := solver.UniverseProvider{Universe: universe}
	s := solver.New(provider, solver.Options{
		Mode:           o.SolveMode,
		MinStability:   root.MinimumStability,
		StabilityFlags: root.StabilityFlags,
		IncludeDev:     req.IncludeDev,
		Locked:         pinnedVersions(req, priorLock),
	})
	res, err := s.Solve(root)
	if err != nil {
		return nil, perr.Wrap(perr.KindConflict, err, "orchestrator: solve dependency graph")
	}
	return res, nil
}

// pinnedVersions builds the solver's soft-preference Locked map for
// UpdateSubset: every package the prior lock selected, except the ones
// named in req.Names, is offered back to the solver as its preferred
// candidate — the mechanism behind "update only these dependencies,
// leave everything else as close to its locked version as the
// constraints allow."
func pinnedVersions(req Request, priorLock *lockfile.LockFile) map[manifest.PackageID]version.Version {
	if req.Mode != UpdateSubset || priorLock == nil {
		return nil
	}
	wanted := make(map[string]bool, len(req.Names))
	for _, n := range req.Names {
		wanted[n] = true
	}
	out := make(map[manifest.PackageID]version.Version)
	for _, p := range append(append([]lockfile.LockedPackage{}, priorLock.Packages...), priorLock.PackagesDev...) {
		if wanted[p.ID.String()] {
			continue
		}
		out[p.ID] = p.Version
	}
	return out
}

// rootRequirementIDs selects which root requirements seed the fetch,
// honoring UpdateSubset's name restriction.
func rootRequirementIDs(root *manifest.Manifest, req Request) []manifest.PackageID {
	all := root.RootRequirements(req.IncludeDev)
	if req.Mode != UpdateSubset || len(req.Names) == 0 {
		ids := make([]manifest.PackageID, 0, len(all))
		for id := range all {
			ids = append(ids, id)
		}
		return ids
	}
	wanted := make(map[string]bool, len(req.Names))
	for _, n := range req.Names {
		wanted[n] = true
	}
	var ids []manifest.PackageID
	for id := range all {
		if wanted[id.String()] {
			ids = append(ids, id)
		}
	}
	return ids
}

