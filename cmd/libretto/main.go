// Command libretto is a Composer-wire-compatible package manager core:
// streaming metadata fetch, a conflict-driven solver, deterministic
// lock-file generation, and parallel download/verification/extraction.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"

	"github.com/libretto-pm/libretto/pkg/cache"
	"github.com/libretto-pm/libretto/pkg/config"
	"github.com/libretto-pm/libretto/pkg/credential"
	"github.com/libretto-pm/libretto/pkg/download"
	"github.com/libretto-pm/libretto/pkg/lockfile"
	"github.com/libretto-pm/libretto/pkg/manifest"
	"github.com/libretto-pm/libretto/pkg/orchestrator"
	"github.com/libretto-pm/libretto/pkg/perr"
	"github.com/libretto-pm/libretto/pkg/registry"
	"github.com/libretto-pm/libretto/pkg/solver"
	"github.com/libretto-pm/libretto/pkg/vcs"
)

// Globals holds the flags every subcommand shares.
type Globals struct {
	Verbose bool   `help:"Enable debug logging." short:"v"`
	Dir     string `help:"Project directory (defaults to the working directory, walked upward for manifest.json)." type:"path"`
}

type CLI struct {
	Globals

	Install InstallCmd `cmd:"" help:"Install dependencies from the existing lock file, or solve and write one if absent."`
	Update  UpdateCmd  `cmd:"" help:"Re-solve and update dependencies, optionally restricted to named packages."`
	Version VersionCmd `cmd:"" help:"Print version information."`
}

var version = "dev"

type VersionCmd struct{}

func (cmd *VersionCmd) Run(*Globals) error {
	fmt.Println(version)
	return nil
}

type InstallCmd struct {
	DryRun bool `help:"Solve and diff without writing the lock file or touching vendor/."`
}

func (cmd *InstallCmd) Run(g *Globals) error {
	mode := orchestrator.InstallFromLock
	if cmd.DryRun {
		mode = orchestrator.DryRun
	}
	return run(g, orchestrator.Request{Mode: mode}, false)
}

type UpdateCmd struct {
	Packages     []string `arg:"" optional:"" help:"Restrict the update to these vendor/name packages; omit to update everything."`
	Dev          bool     `help:"Include require-dev packages in the solve."`
	DryRun       bool     `help:"Solve and diff without writing the lock file or touching vendor/."`
	PreferLowest bool     `help:"Pick the lowest version satisfying every constraint instead of the highest."`
}

func (cmd *UpdateCmd) Run(g *Globals) error {
	mode := orchestrator.UpdateAll
	if len(cmd.Packages) > 0 {
		mode = orchestrator.UpdateSubset
	}
	if cmd.DryRun {
		mode = orchestrator.DryRun
	}
	return run(g, orchestrator.Request{Mode: mode, Names: cmd.Packages, IncludeDev: cmd.Dev}, cmd.PreferLowest)
}

func run(g *Globals, req orchestrator.Request, preferLowest bool) error {
	logLevel := slog.LevelInfo
	if g.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	root, err := config.FindProjectRoot(g.Dir)
	if err != nil {
		return err
	}

	manifestData, err := os.ReadFile(filepath.Join(root, manifest.FileName))
	if err != nil {
		return perr.Wrap(perr.KindInput, err, "libretto: read %s", manifest.FileName)
	}
	m, err := manifest.Parse(manifestData)
	if err != nil {
		return perr.Wrap(perr.KindInput, err, "libretto: parse %s", manifest.FileName)
	}

	cfg, err := config.Resolve(m.Config, root)
	if err != nil {
		return err
	}
	config.ApplyEnv(cfg)

	projectAuth, userAuth := config.AuthPaths(root)
	broker := credential.NewBroker(projectAuth, userAuth)
	broker.Interactive = !config.NonInteractive()

	o := orchestrator.New(root, cfg)
	o.Logger = logger
	if preferLowest {
		o.SolveMode = solver.PreferLowest
	}

	if config.NetworkDisabled() {
		return runOffline(o, req)
	}

	actor := registry.NewActor(&http.Client{Timeout: cfg.ProcessTimeout}, broker)
	o.Fetcher = registry.NewClient(actor)

	diskCache, err := cache.Open(cache.Options{DiskPath: filepath.Join(cfg.CacheDir, "metadata.bolt")})
	if err != nil {
		return perr.Wrap(perr.KindInput, err, "libretto: open metadata cache")
	}
	o.Cache = diskCache

	o.Downloads = download.NewPool(&http.Client{Timeout: cfg.ProcessTimeout})

	refCache := vcs.NewReferenceCache(filepath.Join(cfg.CacheDir, "vcs-refs"))
	vcsCreds := credential.VCSAdapter{Broker: broker}
	o.VCS = func(vcsType string) (vcs.Driver, error) {
		return vcs.New(vcs.Type(vcsType), refCache, vcsCreds, nil)
	}

	summary, err := o.Run(context.Background(), time.Now(), req)
	if err != nil {
		return err
	}
	report(summary)
	return nil
}

// runOffline is taken under LIBRETTO_NO_NETWORK: it can only ever use
// the install-from-lock fast path, since anything else needs the
// registry fetcher this mode deliberately leaves unconfigured.
func runOffline(o *orchestrator.Orchestrator, req orchestrator.Request) error {
	if req.Mode != orchestrator.InstallFromLock {
		return perr.New(perr.KindInput, "libretto: LIBRETTO_NO_NETWORK is set; only install from an existing lock file is possible")
	}
	lockPath := filepath.Join(o.ProjectRoot, lockfile.FileName)
	if _, err := os.Stat(lockPath); err != nil {
		return perr.Wrap(perr.KindInput, err, "libretto: LIBRETTO_NO_NETWORK is set and no lock file exists")
	}
	summary, err := o.Run(context.Background(), time.Now(), req)
	if err != nil {
		return err
	}
	report(summary)
	return nil
}

func report(summary *orchestrator.Summary) {
	installed, updated, removed := summary.Changes.Counts()
	fmt.Printf("%d installed, %d updated, %d removed (%s)\n", installed, updated, removed, summary.Duration())
	for _, err := range summary.Errors {
		fmt.Fprintln(os.Stderr, err)
	}
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("libretto"),
		kong.Description("A Composer-wire-compatible package manager core."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.Globals)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(perr.ExitCode(err))
	}
}
