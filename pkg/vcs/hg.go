package vcs

import (
	"context"

	mvcs "github.com/Masterminds/vcs"

	"github.com/libretto-pm/libretto/pkg/perr"
)

// hgDriver implements Driver for Mercurial via Masterminds/vcs's
// HgRepo. No reference-cache acceleration: hg's local-clone-as-cache
// trick works differently enough from git's `--reference` that
// spec.md §4.I scopes the reference cache to git only.
type hgDriver struct {
	credentials CredentialSource
}

func (d *hgDriver) Clone(ctx context.Context, url, dest, ref string) error {
	return withRetry(ctx, d.credentials, hostOf(url), func(ctx context.Context) error {
		repo, err := mvcs.NewHgRepo(url, dest)
		if err != nil {
			return perr.Wrap(perr.KindIntegrity, err, "vcs: init hg repo %s", url)
		}
		if err := repo.Get(); err != nil {
			return classifyHgErr(err, "hg clone %s", url)
		}
		if ref == "" {
			return nil
		}
		if err := repo.UpdateVersion(ref); err != nil {
			return perr.Wrap(perr.KindInput, err, "vcs: hg update to %s", ref)
		}
		return nil
	})
}

func (d *hgDriver) Update(ctx context.Context, dest, ref string) error {
	return withRetry(ctx, d.credentials, "", func(ctx context.Context) error {
		repo, err := mvcs.NewHgRepo("", dest)
		if err != nil {
			return perr.Wrap(perr.KindIntegrity, err, "vcs: open hg working copy %s", dest)
		}
		if err := repo.Update(); err != nil {
			return classifyHgErr(err, "hg pull %s", dest)
		}
		if ref == "" {
			return nil
		}
		if err := repo.UpdateVersion(ref); err != nil {
			return perr.Wrap(perr.KindInput, err, "vcs: hg update to %s", ref)
		}
		return nil
	})
}

func (d *hgDriver) CurrentCommit(ctx context.Context, dest string) (string, error) {
	repo, err := mvcs.NewHgRepo("", dest)
	if err != nil {
		return "", perr.Wrap(perr.KindIntegrity, err, "vcs: open hg working copy %s", dest)
	}
	rev, err := repo.Version()
	if err != nil {
		return "", perr.Wrap(perr.KindIntegrity, err, "vcs: hg identify %s", dest)
	}
	return rev, nil
}

func (d *hgDriver) Status(ctx context.Context, dest string) (Status, error) {
	repo, err := mvcs.NewHgRepo("", dest)
	if err != nil {
		return Status{}, perr.Wrap(perr.KindIntegrity, err, "vcs: open hg working copy %s", dest)
	}
	rev, err := repo.Version()
	if err != nil {
		return Status{}, perr.Wrap(perr.KindIntegrity, err, "vcs: hg identify %s", dest)
	}
	return Status{Commit: rev, Dirty: repo.IsDirty()}, nil
}

func classifyHgErr(err error, format string, args ...interface{}) error {
	if _, ok := err.(*mvcs.RemoteError); ok {
		return perr.Wrap(perr.KindNetwork, err, format, args...)
	}
	return perr.Wrap(perr.KindIntegrity, err, format, args...)
}
