// Package vcs implements the clone-or-update VCS drivers (spec.md
// §4.I): git/svn/hg via github.com/Masterminds/vcs, fossil/perforce via
// thin CLI wrappers in the same style, a shared bare-repository
// reference cache for git, SSH host-key verification, and
// credential-rotation retry on auth failure.
package vcs

import (
	"context"
	"time"

	"github.com/libretto-pm/libretto/pkg/perr"
)

// Type identifies a version-control system.
type Type string

const (
	Git        Type = "git"
	Svn        Type = "svn"
	Hg         Type = "hg"
	Fossil     Type = "fossil"
	Perforce   Type = "perforce"
	TypeUnset  Type = ""
)

// Status summarizes the state of a working copy.
type Status struct {
	CurrentRef string
	Commit     string
	Dirty      bool
	CommitTime time.Time
}

// Driver is the operation set every VCS backend implements (spec.md
// §4.I: "clone(url, dest, ref?), update(dest), current_commit(dest),
// status(dest)").
type Driver interface {
	// Clone materializes url at dest, checking out ref if non-empty
	// (a branch, tag, or revision depending on the backend).
	Clone(ctx context.Context, url, dest, ref string) error
	// Update fetches upstream changes into an existing dest and checks
	// out ref if non-empty, leaving the current ref otherwise.
	Update(ctx context.Context, dest, ref string) error
	// CurrentCommit returns the working copy's current revision.
	CurrentCommit(ctx context.Context, dest string) (string, error)
	// Status reports the working copy's ref/commit/dirty state.
	Status(ctx context.Context, dest string) (Status, error)
}

// CredentialSource supplies auth for a VCS host and is consulted on
// retry after an auth-required failure (spec.md §4.I "Credential
// rotation"). It is satisfied by pkg/credential.Broker.
type CredentialSource interface {
	// Authorize is given a chance to populate ctx (e.g. an SSH agent
	// socket path, or HTTP basic/bearer credentials via env) before an
	// operation is retried. ok is false if no credential could be found.
	Authorize(ctx context.Context, host string) (context.Context, bool)
}

// New returns the Driver for t, wired to refCache for git's
// accelerated-clone path, credentials for auth retry, and ssh for
// git+ssh host-key verification. refCache, credentials, and ssh may
// all be nil: a nil refCache disables the reference-cache acceleration,
// a nil credentials disables the rotate-and-retry step, and a nil ssh
// falls back to the system ssh client's own known_hosts handling. Only
// Git consults ssh; the other drivers accept it in the call for a
// uniform call site but ignore it.
func New(t Type, refCache *ReferenceCache, credentials CredentialSource, ssh *SSHConfig) (Driver, error) {
	switch t {
	case Git:
		return &gitDriver{refCache: refCache, credentials: credentials, ssh: ssh}, nil
	case Svn:
		return &svnDriver{credentials: credentials}, nil
	case Hg:
		return &hgDriver{credentials: credentials}, nil
	case Fossil:
		return &fossilDriver{credentials: credentials}, nil
	case Perforce:
		return &perforceDriver{credentials: credentials}, nil
	default:
		return nil, perr.New(perr.KindInput, "vcs: unsupported VCS type %q", t)
	}
}

// withRetry runs op once; if it fails with a KindAuth error and
// credentials is non-nil, it asks credentials to authorize host and
// retries exactly once (spec.md §4.I: "retries once").
func withRetry(ctx context.Context, credentials CredentialSource, host string, op func(context.Context) error) error {
	err := op(ctx)
	if err == nil || perr.KindOf(err) != perr.KindAuth || credentials == nil {
		return err
	}
	authCtx, ok := credentials.Authorize(ctx, host)
	if !ok {
		return err
	}
	return op(authCtx)
}
