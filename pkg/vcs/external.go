package vcs

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/libretto-pm/libretto/pkg/perr"
)

// fossilDriver and perforceDriver have no Go client library anywhere
// in the pack, so they shell out directly — the same shape golang-dep
// uses for the git commands Masterminds/vcs's Repo interface doesn't
// cover (vcs_source.go's doListVersions calling "git ls-remote"
// directly), generalized here to the entire operation set since no
// library exists to delegate the rest to.
type fossilDriver struct {
	credentials CredentialSource
}

func (d *fossilDriver) Clone(ctx context.Context, url, dest, ref string) error {
	return withRetry(ctx, d.credentials, hostOf(url), func(ctx context.Context) error {
		if err := requireTool("fossil"); err != nil {
			return err
		}
		repoFile := dest + ".fossil"
		if err := runTool(ctx, "", "fossil", "clone", url, repoFile); err != nil {
			return err
		}
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return perr.Wrap(perr.KindIntegrity, err, "vcs: create fossil checkout dir %s", dest)
		}
		args := []string{"open", repoFile}
		if ref != "" {
			args = append(args, ref)
		}
		return runTool(ctx, dest, "fossil", args...)
	})
}

func (d *fossilDriver) Update(ctx context.Context, dest, ref string) error {
	return withRetry(ctx, d.credentials, "", func(ctx context.Context) error {
		if err := runTool(ctx, dest, "fossil", "update"); err != nil {
			return err
		}
		if ref == "" {
			return nil
		}
		return runTool(ctx, dest, "fossil", "update", ref)
	})
}

func (d *fossilDriver) CurrentCommit(ctx context.Context, dest string) (string, error) {
	out, err := outputOf(ctx, dest, "fossil", "info")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "checkout:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				return fields[1], nil
			}
		}
	}
	return "", perr.New(perr.KindIntegrity, "vcs: could not find checkout hash in fossil info output")
}

func (d *fossilDriver) Status(ctx context.Context, dest string) (Status, error) {
	commit, err := d.CurrentCommit(ctx, dest)
	if err != nil {
		return Status{}, err
	}
	out, err := outputOf(ctx, dest, "fossil", "changes")
	if err != nil {
		return Status{}, err
	}
	return Status{Commit: commit, Dirty: strings.TrimSpace(out) != "", CommitTime: time.Time{}}, nil
}

// perforceDriver wraps the p4 CLI. Perforce has no notion of "clone a
// remote into a fresh directory" the way DVCSes do: a depot path is
// synced into a client workspace that must already be mapped, so Clone
// here performs the initial sync of dest against url (a depot path).
type perforceDriver struct {
	credentials CredentialSource
}

func (d *perforceDriver) Clone(ctx context.Context, url, dest, ref string) error {
	return withRetry(ctx, d.credentials, "", func(ctx context.Context) error {
		if err := requireTool("p4"); err != nil {
			return err
		}
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return perr.Wrap(perr.KindIntegrity, err, "vcs: create perforce workspace dir %s", dest)
		}
		spec := url
		if ref != "" {
			spec = url + "@" + ref
		}
		return runTool(ctx, dest, "p4", "sync", spec)
	})
}

func (d *perforceDriver) Update(ctx context.Context, dest, ref string) error {
	return withRetry(ctx, d.credentials, "", func(ctx context.Context) error {
		spec := "..."
		if ref != "" {
			spec = "...@" + ref
		}
		return runTool(ctx, dest, "p4", "sync", spec)
	})
}

func (d *perforceDriver) CurrentCommit(ctx context.Context, dest string) (string, error) {
	out, err := outputOf(ctx, dest, "p4", "changes", "-m1", "...#have")
	if err != nil {
		return "", err
	}
	fields := strings.Fields(out)
	if len(fields) < 2 {
		return "", perr.New(perr.KindIntegrity, "vcs: could not parse p4 changes output %q", out)
	}
	return fields[1], nil
}

func (d *perforceDriver) Status(ctx context.Context, dest string) (Status, error) {
	commit, err := d.CurrentCommit(ctx, dest)
	if err != nil {
		return Status{}, err
	}
	out, err := outputOf(ctx, dest, "p4", "opened")
	if err != nil {
		return Status{}, err
	}
	return Status{Commit: commit, Dirty: strings.TrimSpace(out) != ""}, nil
}

func requireTool(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return perr.New(perr.KindCapability, "vcs: %s is required but was not found on PATH", name)
	}
	return nil
}

func runTool(ctx context.Context, dir, name string, args ...string) error {
	_, err := outputOf(ctx, dir, name, args...)
	return err
}

func outputOf(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		if isAuthFailure(out) {
			return "", perr.Wrap(perr.KindAuth, err, "vcs: %s %s: %s", name, strings.Join(args, " "), strings.TrimSpace(string(out)))
		}
		return "", perr.Wrap(perr.KindNetwork, err, "vcs: %s %s: %s", name, strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
