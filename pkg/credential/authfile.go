package credential

import (
	"encoding/json"
	"os"

	"github.com/libretto-pm/libretto/pkg/perr"
)

// AuthFile mirrors Composer's auth.json wire format (spec.md §4.J: "a
// project-local auth file, then user-global auth file"). Every map is
// keyed by hostname, matched case-insensitively with *.suffix wildcards
// via hostMatches.
type AuthFile struct {
	HTTPBasic      map[string]BasicAuth `json:"http-basic,omitempty"`
	Bearer         map[string]string    `json:"bearer,omitempty"`
	GithubOAuth    map[string]string    `json:"github-oauth,omitempty"`
	GitlabOAuth    map[string]string    `json:"gitlab-oauth,omitempty"`
	GitlabToken    map[string]string    `json:"gitlab-token,omitempty"`
	BitbucketOAuth map[string]BasicAuth   `json:"bitbucket-oauth,omitempty"`
	ForgejoToken   map[string]ForgejoAuth `json:"forgejo-token,omitempty"`
}

// BasicAuth is a username/password pair as Composer's auth.json encodes
// http-basic and bitbucket-oauth entries.
type BasicAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ForgejoAuth is a username/token pair, the shape spec.md §6 gives
// forgejo-token entries (unlike bearer/oauth entries, which are bare
// token strings).
type ForgejoAuth struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// LoadAuthFile reads and parses an auth.json at path. A missing file is
// not an error — it returns an empty, non-nil *AuthFile — since both
// the project-local and user-global files are optional.
func LoadAuthFile(path string) (*AuthFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &AuthFile{}, nil
	}
	if err != nil {
		return nil, perr.Wrap(perr.KindIntegrity, err, "credential: read %s", path)
	}
	var af AuthFile
	if err := json.Unmarshal(data, &af); err != nil {
		return nil, perr.Wrap(perr.KindInput, err, "credential: parse %s", path)
	}
	return &af, nil
}

// credentialFor resolves whichever of AuthFile's maps has an entry
// matching host, in Composer's own precedence order (http-basic first,
// since it is the most specific/general-purpose scheme).
func (af *AuthFile) credentialFor(host string) (Credential, bool) {
	if af == nil {
		return Credential{}, false
	}
	if key, ok := bestMatch(keysOf(af.HTTPBasic), host); ok {
		b := af.HTTPBasic[key]
		return Credential{Kind: KindBasic, Username: b.Username, Secret: b.Password}, true
	}
	if key, ok := bestMatch(keysOfStrings(af.Bearer), host); ok {
		return Credential{Kind: KindBearer, Secret: af.Bearer[key]}, true
	}
	if key, ok := bestMatch(keysOfStrings(af.GithubOAuth), host); ok {
		return Credential{Kind: KindBearer, Secret: af.GithubOAuth[key]}, true
	}
	if key, ok := bestMatch(keysOfStrings(af.GitlabToken), host); ok {
		return Credential{Kind: KindBearer, Secret: af.GitlabToken[key]}, true
	}
	if key, ok := bestMatch(keysOfStrings(af.GitlabOAuth), host); ok {
		return Credential{Kind: KindBearer, Secret: af.GitlabOAuth[key]}, true
	}
	if key, ok := bestMatch(keysOf(af.BitbucketOAuth), host); ok {
		b := af.BitbucketOAuth[key]
		return Credential{Kind: KindBasic, Username: b.Username, Secret: b.Password}, true
	}
	if key, ok := bestMatch(keysOfForgejo(af.ForgejoToken), host); ok {
		f := af.ForgejoToken[key]
		return Credential{Kind: KindBearer, Username: f.Username, Secret: f.Token}, true
	}
	return Credential{}, false
}

func keysOf(m map[string]BasicAuth) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func keysOfForgejo(m map[string]ForgejoAuth) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func keysOfStrings(m map[string]string) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
