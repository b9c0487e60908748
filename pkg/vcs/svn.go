package vcs

import (
	"context"

	mvcs "github.com/Masterminds/vcs"

	"github.com/libretto-pm/libretto/pkg/perr"
)

// svnDriver implements Driver for Subversion, delegating entirely to
// github.com/Masterminds/vcs's SvnRepo — svn has no local bare-clone
// concept, so there is no reference-cache acceleration to offer.
type svnDriver struct {
	credentials CredentialSource
}

func (d *svnDriver) Clone(ctx context.Context, url, dest, ref string) error {
	return withRetry(ctx, d.credentials, hostOf(url), func(ctx context.Context) error {
		repo, err := mvcs.NewSvnRepo(url, dest)
		if err != nil {
			return perr.Wrap(perr.KindIntegrity, err, "vcs: init svn repo %s", url)
		}
		if err := repo.Get(); err != nil {
			return classifySvnErr(err, "svn checkout %s", url)
		}
		if ref == "" {
			return nil
		}
		if err := repo.UpdateVersion(ref); err != nil {
			return perr.Wrap(perr.KindInput, err, "vcs: svn switch to %s", ref)
		}
		return nil
	})
}

func (d *svnDriver) Update(ctx context.Context, dest, ref string) error {
	return withRetry(ctx, d.credentials, "", func(ctx context.Context) error {
		repo, err := mvcs.NewSvnRepo("", dest)
		if err != nil {
			return perr.Wrap(perr.KindIntegrity, err, "vcs: open svn working copy %s", dest)
		}
		if err := repo.Update(); err != nil {
			return classifySvnErr(err, "svn update %s", dest)
		}
		if ref == "" {
			return nil
		}
		if err := repo.UpdateVersion(ref); err != nil {
			return perr.Wrap(perr.KindInput, err, "vcs: svn switch to %s", ref)
		}
		return nil
	})
}

func (d *svnDriver) CurrentCommit(ctx context.Context, dest string) (string, error) {
	repo, err := mvcs.NewSvnRepo("", dest)
	if err != nil {
		return "", perr.Wrap(perr.KindIntegrity, err, "vcs: open svn working copy %s", dest)
	}
	rev, err := repo.Version()
	if err != nil {
		return "", perr.Wrap(perr.KindIntegrity, err, "vcs: svn info %s", dest)
	}
	return rev, nil
}

func (d *svnDriver) Status(ctx context.Context, dest string) (Status, error) {
	repo, err := mvcs.NewSvnRepo("", dest)
	if err != nil {
		return Status{}, perr.Wrap(perr.KindIntegrity, err, "vcs: open svn working copy %s", dest)
	}
	rev, err := repo.Version()
	if err != nil {
		return Status{}, perr.Wrap(perr.KindIntegrity, err, "vcs: svn info %s", dest)
	}
	return Status{Commit: rev, Dirty: repo.IsDirty()}, nil
}

func classifySvnErr(err error, format string, args ...interface{}) error {
	if _, ok := err.(*mvcs.RemoteError); ok {
		return perr.Wrap(perr.KindNetwork, err, format, args...)
	}
	return perr.Wrap(perr.KindIntegrity, err, format, args...)
}
