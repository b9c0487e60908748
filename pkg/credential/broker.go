// Package credential implements the host-keyed credential broker
// (spec.md §4.J): an in-memory cache, environment variables, project
// and user auth files, SSH agent/key discovery, and an interactive
// prompt, tried in that order and cached once resolved.
package credential

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
)

// Kind classifies how a resolved Credential should be applied to an
// outbound request.
type Kind int

const (
	KindBasic Kind = iota
	KindBearer
	KindSSHKey
)

// Credential is the result of a successful lookup for one host.
type Credential struct {
	Kind     Kind
	Username string
	Secret   string      // password, token, or passphrase depending on Kind
	Signer   ssh.Signer  // set only for KindSSHKey
}

// PromptFunc is called for interactive credential entry when every
// other lookup step misses and a terminal is attached. It returns a
// username/password pair (username may be empty for token-only
// prompts).
type PromptFunc func(host string) (username, password string, ok bool)

// Broker implements the host lookup chain and satisfies
// pkg/registry.CredentialSource directly; pkg/vcs.CredentialSource is
// satisfied via the VCSAdapter below, since both interfaces share the
// Authorize method name with incompatible signatures.
type Broker struct {
	ProjectAuthPath string
	UserAuthPath    string
	SSHKeyDir       string // defaults to "~/.ssh" when empty
	Interactive     bool
	Prompt          PromptFunc

	mu      sync.Mutex
	cache   map[string]Credential
	project *AuthFile
	user    *AuthFile
	loaded  bool
}

// NewBroker constructs a Broker. Both auth files are read lazily, on
// the first Lookup.
func NewBroker(projectAuthPath, userAuthPath string) *Broker {
	return &Broker{
		ProjectAuthPath: projectAuthPath,
		UserAuthPath:    userAuthPath,
		cache:           make(map[string]Credential),
	}
}

func (b *Broker) ensureLoaded() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loaded {
		return nil
	}
	project, err := LoadAuthFile(b.ProjectAuthPath)
	if err != nil {
		return err
	}
	user, err := LoadAuthFile(b.UserAuthPath)
	if err != nil {
		return err
	}
	b.project, b.user = project, user
	b.loaded = true
	return nil
}

// Lookup resolves a Credential for host via the full chain, caching
// the result (including a negative result, so repeated misses for the
// same host don't re-walk the chain).
func (b *Broker) Lookup(host string) (Credential, bool) {
	if err := b.ensureLoaded(); err != nil {
		return Credential{}, false
	}

	b.mu.Lock()
	if cred, ok := b.cache[host]; ok {
		b.mu.Unlock()
		return cred, cred.Kind != kindNone
	}
	b.mu.Unlock()

	cred, ok := b.resolve(host)
	b.mu.Lock()
	if ok {
		b.cache[host] = cred
	} else {
		b.cache[host] = Credential{Kind: kindNone}
	}
	b.mu.Unlock()
	return cred, ok
}

// kindNone marks a cached negative lookup; it is never returned to a
// caller (Lookup translates it back to ok=false).
const kindNone Kind = -1

func (b *Broker) resolve(host string) (Credential, bool) {
	if cred, ok := fromEnv(host); ok {
		return cred, true
	}
	if cred, ok := b.project.credentialFor(host); ok {
		return cred, true
	}
	if cred, ok := b.user.credentialFor(host); ok {
		return cred, true
	}
	if cred, ok := b.fromSSHAgent(host); ok {
		return cred, true
	}
	if cred, ok := b.fromSSHKeyFile(host); ok {
		return cred, true
	}
	if b.Interactive && b.Prompt != nil {
		if user, pass, ok := b.Prompt(host); ok {
			return Credential{Kind: KindBasic, Username: user, Secret: pass}, true
		}
	}
	return Credential{}, false
}

// fromEnv checks the convention LIBRETTO_AUTH_<HOST>_TOKEN (bearer) or
// LIBRETTO_AUTH_<HOST>_USER/_PASS (basic), with the host uppercased and
// every non-alphanumeric character turned into an underscore.
func fromEnv(host string) (Credential, bool) {
	key := envKey(host)
	if token := os.Getenv("LIBRETTO_AUTH_" + key + "_TOKEN"); token != "" {
		return Credential{Kind: KindBearer, Secret: token}, true
	}
	user := os.Getenv("LIBRETTO_AUTH_" + key + "_USER")
	pass := os.Getenv("LIBRETTO_AUTH_" + key + "_PASS")
	if user != "" || pass != "" {
		return Credential{Kind: KindBasic, Username: user, Secret: pass}, true
	}
	return Credential{}, false
}

func envKey(host string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(host) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Authorize satisfies pkg/registry.CredentialSource: it sets whatever
// auth header is appropriate for host on req.
func (b *Broker) Authorize(req *http.Request, host string) bool {
	cred, ok := b.Lookup(host)
	if !ok {
		return false
	}
	switch cred.Kind {
	case KindBasic:
		req.SetBasicAuth(cred.Username, cred.Secret)
		return true
	case KindBearer:
		req.Header.Set("Authorization", "Bearer "+cred.Secret)
		return true
	default:
		return false
	}
}

// VCSAdapter wraps a Broker to satisfy pkg/vcs.CredentialSource, whose
// Authorize signature (ctx instead of *http.Request) differs from
// pkg/registry.CredentialSource's — one Go method set can't implement
// both directly since both interfaces use the method name Authorize.
type VCSAdapter struct {
	Broker *Broker
}

// Authorize is consulted after an auth-required failure during a VCS
// operation. There is nothing to inject into ctx for the CLI-shelling
// VCS drivers (git reads GIT_ASKPASS / the SSH agent's own env on its
// own); this reports whether a credential exists at all, which is what
// pkg/vcs's withRetry needs to decide whether a retry can possibly
// succeed.
func (a VCSAdapter) Authorize(ctx context.Context, host string) (context.Context, bool) {
	_, ok := a.Broker.Lookup(host)
	return ctx, ok
}
