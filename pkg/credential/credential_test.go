package credential

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestHostMatchesExactAndWildcard(t *testing.T) {
	cases := []struct {
		pattern, host string
		want          bool
	}{
		{"packagist.org", "packagist.org", true},
		{"packagist.org", "PACKAGIST.ORG", true},
		{"*.github.com", "api.github.com", true},
		{"*.github.com", "github.com", true},
		{"*.github.com", "evilgithub.com", false},
		{"gitlab.com", "gitlab.org", false},
	}
	for _, c := range cases {
		if got := hostMatches(c.pattern, c.host); got != c.want {
			t.Errorf("hostMatches(%q, %q) = %v, want %v", c.pattern, c.host, got, c.want)
		}
	}
}

func TestBestMatchPrefersExactOverWildcard(t *testing.T) {
	entries := map[string]struct{}{
		"*.github.com": {},
		"api.github.com": {},
	}
	got, ok := bestMatch(entries, "api.github.com")
	if !ok || got != "api.github.com" {
		t.Errorf("bestMatch = %q, %v; want exact match to win", got, ok)
	}
}

func writeAuthFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auth.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write auth.json: %v", err)
	}
	return path
}

func TestLoadAuthFileMissingIsEmpty(t *testing.T) {
	af, err := LoadAuthFile(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("LoadAuthFile: %v", err)
	}
	if af == nil || len(af.HTTPBasic) != 0 {
		t.Fatalf("expected an empty, non-nil AuthFile, got %+v", af)
	}
}

func TestLoadAuthFileParsesComposerShape(t *testing.T) {
	path := writeAuthFile(t, `{
		"http-basic": {"repo.example.com": {"username": "alice", "password": "s3cret"}},
		"github-oauth": {"github.com": "ghp_abcdef"}
	}`)
	af, err := LoadAuthFile(path)
	if err != nil {
		t.Fatalf("LoadAuthFile: %v", err)
	}
	cred, ok := af.credentialFor("repo.example.com")
	if !ok || cred.Kind != KindBasic || cred.Username != "alice" || cred.Secret != "s3cret" {
		t.Errorf("unexpected http-basic credential: %+v, ok=%v", cred, ok)
	}
	cred, ok = af.credentialFor("github.com")
	if !ok || cred.Kind != KindBearer || cred.Secret != "ghp_abcdef" {
		t.Errorf("unexpected github-oauth credential: %+v, ok=%v", cred, ok)
	}
	if _, ok := af.credentialFor("unrelated.example.com"); ok {
		t.Error("expected no credential for an unconfigured host")
	}
}

func TestBrokerEnvLookup(t *testing.T) {
	t.Setenv("LIBRETTO_AUTH_PACKAGIST_ORG_TOKEN", "env-token")
	b := NewBroker(filepath.Join(t.TempDir(), "missing.json"), filepath.Join(t.TempDir(), "missing2.json"))

	cred, ok := b.Lookup("packagist.org")
	if !ok || cred.Kind != KindBearer || cred.Secret != "env-token" {
		t.Fatalf("expected env-sourced bearer credential, got %+v, ok=%v", cred, ok)
	}
}

func TestBrokerProjectAuthTakesPrecedenceOverUser(t *testing.T) {
	project := writeAuthFile(t, `{"bearer": {"registry.example.com": "project-token"}}`)
	user := writeAuthFile(t, `{"bearer": {"registry.example.com": "user-token"}}`)
	b := NewBroker(project, user)

	cred, ok := b.Lookup("registry.example.com")
	if !ok || cred.Secret != "project-token" {
		t.Fatalf("expected project auth file to win, got %+v, ok=%v", cred, ok)
	}
}

func TestBrokerCachesNegativeLookup(t *testing.T) {
	b := NewBroker(filepath.Join(t.TempDir(), "missing.json"), filepath.Join(t.TempDir(), "missing2.json"))
	if _, ok := b.Lookup("nowhere.example.com"); ok {
		t.Fatal("expected no credential for an unconfigured host")
	}
	// Second lookup should hit the cache and still report a miss rather
	// than panicking on the cached kindNone sentinel.
	if _, ok := b.Lookup("nowhere.example.com"); ok {
		t.Fatal("expected the cached negative result to still report a miss")
	}
}

func TestBrokerAuthorizeSetsBasicAuthHeader(t *testing.T) {
	project := writeAuthFile(t, `{"http-basic": {"repo.example.com": {"username": "bob", "password": "hunter2"}}}`)
	b := NewBroker(project, filepath.Join(t.TempDir(), "missing.json"))

	req, _ := http.NewRequest(http.MethodGet, "https://repo.example.com/p2/acme/widget.json", nil)
	if ok := b.Authorize(req, "repo.example.com"); !ok {
		t.Fatal("expected Authorize to succeed")
	}
	user, pass, ok := req.BasicAuth()
	if !ok || user != "bob" || pass != "hunter2" {
		t.Errorf("unexpected basic auth on request: user=%q pass=%q ok=%v", user, pass, ok)
	}
}

func TestBrokerAuthorizeReturnsFalseWithoutCredential(t *testing.T) {
	b := NewBroker(filepath.Join(t.TempDir(), "missing.json"), filepath.Join(t.TempDir(), "missing2.json"))
	req, _ := http.NewRequest(http.MethodGet, "https://unknown.example.com/", nil)
	if ok := b.Authorize(req, "unknown.example.com"); ok {
		t.Error("expected Authorize to fail with no credential available")
	}
}

func TestVCSAdapterReflectsBrokerLookup(t *testing.T) {
	t.Setenv("LIBRETTO_AUTH_GIT_EXAMPLE_COM_TOKEN", "token")
	b := NewBroker(filepath.Join(t.TempDir(), "missing.json"), filepath.Join(t.TempDir(), "missing2.json"))
	adapter := VCSAdapter{Broker: b}

	_, ok := adapter.Authorize(context.Background(), "git.example.com")
	if !ok {
		t.Error("expected the VCS adapter to find the env-sourced credential")
	}
	_, ok = adapter.Authorize(context.Background(), "no-credential.example.com")
	if ok {
		t.Error("expected the VCS adapter to report no credential for an unconfigured host")
	}
}

func TestMask(t *testing.T) {
	cases := map[string]string{
		"":                 "",
		"ab":               "a...",
		"ghp_abcdef123456": "ghp_...3456",
	}
	for in, want := range cases {
		if got := Mask(in); got != want {
			t.Errorf("Mask(%q) = %q, want %q", in, got, want)
		}
	}
}
