package registry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/libretto-pm/libretto/pkg/perr"
)

// Repo identifies a VCS-hosted repository by owner and name, e.g.
// {Owner: "composer", Name: "composer"}.
type Repo struct {
	Owner string
	Name  string
}

// VCSProvider is the thin per-host wrapper spec.md §4.B calls for —
// "GitHub-like, GitLab-like, Bitbucket-like, Gitea-like... each a thin
// wrapper that translates into provider-specific REST paths; the rest
// of the system only sees the abstract trait." Grounded on
// Dalee-comrade-pavlik2's ComposerRegistry, which does the same
// translation (list a repo's tags, pull each tag's composer.json,
// build a version record) for GitLab specifically; the methods below
// generalize that shape across providers.
type VCSProvider interface {
	FetchComposerJSON(ctx context.Context, repo Repo, ref string) ([]byte, error)
	ListTags(ctx context.Context, repo Repo) ([]string, error)
	ListBranches(ctx context.Context, repo Repo) ([]string, error)
	GetDefaultBranch(ctx context.Context, repo Repo) (string, error)
}

// GitHubProvider implements VCSProvider against the GitHub REST API.
type GitHubProvider struct {
	BaseURL string // default "https://api.github.com"
	Actor   *Actor
}

func NewGitHubProvider(actor *Actor) *GitHubProvider {
	return &GitHubProvider{BaseURL: "https://api.github.com", Actor: actor}
}

func (g *GitHubProvider) FetchComposerJSON(ctx context.Context, repo Repo, ref string) ([]byte, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/composer.json?ref=%s",
		strings.TrimSuffix(g.BaseURL, "/"), repo.Owner, repo.Name, ref)

	var content struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := getJSON(ctx, g.Actor, url, &content); err != nil {
		return nil, err
	}
	if content.Encoding != "base64" {
		return nil, perr.New(perr.KindInput, "registry: unexpected github content encoding %q", content.Encoding)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return nil, perr.Wrap(perr.KindInput, err, "registry: decode github composer.json")
	}
	return decoded, nil
}

func (g *GitHubProvider) ListTags(ctx context.Context, repo Repo) ([]string, error) {
	var tags []struct {
		Name string `json:"name"`
	}
	url := fmt.Sprintf("%s/repos/%s/%s/tags", strings.TrimSuffix(g.BaseURL, "/"), repo.Owner, repo.Name)
	if err := getJSON(ctx, g.Actor, url, &tags); err != nil {
		return nil, err
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Name
	}
	return out, nil
}

func (g *GitHubProvider) ListBranches(ctx context.Context, repo Repo) ([]string, error) {
	var branches []struct {
		Name string `json:"name"`
	}
	url := fmt.Sprintf("%s/repos/%s/%s/branches", strings.TrimSuffix(g.BaseURL, "/"), repo.Owner, repo.Name)
	if err := getJSON(ctx, g.Actor, url, &branches); err != nil {
		return nil, err
	}
	out := make([]string, len(branches))
	for i, b := range branches {
		out[i] = b.Name
	}
	return out, nil
}

func (g *GitHubProvider) GetDefaultBranch(ctx context.Context, repo Repo) (string, error) {
	var info struct {
		DefaultBranch string `json:"default_branch"`
	}
	url := fmt.Sprintf("%s/repos/%s/%s", strings.TrimSuffix(g.BaseURL, "/"), repo.Owner, repo.Name)
	if err := getJSON(ctx, g.Actor, url, &info); err != nil {
		return "", err
	}
	return info.DefaultBranch, nil
}

// GitLabProvider implements VCSProvider against the GitLab REST API,
// grounded directly on Dalee-comrade-pavlik2's ComposerRegistry: it
// lists a project's tags, then fetches each ref's composer.json from
// the repository-files endpoint.
type GitLabProvider struct {
	BaseURL string // default "https://gitlab.com"
	Actor   *Actor
}

func NewGitLabProvider(actor *Actor) *GitLabProvider {
	return &GitLabProvider{BaseURL: "https://gitlab.com", Actor: actor}
}

func (g *GitLabProvider) projectPath(repo Repo) string {
	return strings.ReplaceAll(fmt.Sprintf("%s/%s", repo.Owner, repo.Name), "/", "%2F")
}

func (g *GitLabProvider) FetchComposerJSON(ctx context.Context, repo Repo, ref string) ([]byte, error) {
	url := fmt.Sprintf("%s/api/v4/projects/%s/repository/files/composer.json/raw?ref=%s",
		strings.TrimSuffix(g.BaseURL, "/"), g.projectPath(repo), ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, perr.Wrap(perr.KindInput, err, "registry: build gitlab request")
	}
	resp, err := g.Actor.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, perr.New(perr.KindNotFound, "registry: composer.json not found at %s@%s", repo.Name, ref)
	}
	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

func (g *GitLabProvider) ListTags(ctx context.Context, repo Repo) ([]string, error) {
	var tags []struct {
		Name string `json:"name"`
	}
	url := fmt.Sprintf("%s/api/v4/projects/%s/repository/tags", strings.TrimSuffix(g.BaseURL, "/"), g.projectPath(repo))
	if err := getJSON(ctx, g.Actor, url, &tags); err != nil {
		return nil, err
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Name
	}
	return out, nil
}

func (g *GitLabProvider) ListBranches(ctx context.Context, repo Repo) ([]string, error) {
	var branches []struct {
		Name string `json:"name"`
	}
	url := fmt.Sprintf("%s/api/v4/projects/%s/repository/branches", strings.TrimSuffix(g.BaseURL, "/"), g.projectPath(repo))
	if err := getJSON(ctx, g.Actor, url, &branches); err != nil {
		return nil, err
	}
	out := make([]string, len(branches))
	for i, b := range branches {
		out[i] = b.Name
	}
	return out, nil
}

func (g *GitLabProvider) GetDefaultBranch(ctx context.Context, repo Repo) (string, error) {
	var info struct {
		DefaultBranch string `json:"default_branch"`
	}
	url := fmt.Sprintf("%s/api/v4/projects/%s", strings.TrimSuffix(g.BaseURL, "/"), g.projectPath(repo))
	if err := getJSON(ctx, g.Actor, url, &info); err != nil {
		return "", err
	}
	return info.DefaultBranch, nil
}

// getJSON is the shared GET-then-decode helper every provider method
// above uses; it is not exported since only this file's providers need
// it (the Packagist Client has its own FetchEntry with a different
// not-found/auth mapping).
func getJSON(ctx context.Context, actor *Actor, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return perr.Wrap(perr.KindInput, err, "registry: build request")
	}
	req.Header.Set("Accept-Encoding", acceptEncodingHeader)

	resp, err := actor.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return perr.New(perr.KindNotFound, "registry: %s not found", url)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return perr.New(perr.KindAuth, "registry: unauthorized fetching %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		return perr.New(perr.KindNetwork, "registry: unexpected status %s for %s", resp.Status, url)
	}

	body, err := decodeBody(resp)
	if err != nil {
		return err
	}
	defer body.Close()

	dec := json.NewDecoder(body)
	if err := dec.Decode(out); err != nil {
		return perr.Wrap(perr.KindInput, err, "registry: decode response from %s", url)
	}
	return nil
}
