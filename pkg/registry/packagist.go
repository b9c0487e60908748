package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/libretto-pm/libretto/pkg/manifest"
	"github.com/libretto-pm/libretto/pkg/perr"
	"github.com/libretto-pm/libretto/pkg/version"
)

// packageResponse, packageInfo, versionInfo, sourceInfo, and distInfo
// mirror Packagist's "packages/{name}.json" wire shape exactly, down to
// field names, the way MaxSukhanov-git_pkgs_registries's packagist.go
// unmarshals the same endpoint.
type packageResponse struct {
	Package packageInfo `json:"package"`
}

type packageInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Versions    map[string]versionInfo `json:"versions"`
	Type        string                 `json:"type"`
	Repository  string                 `json:"repository"`
	Abandoned   interface{}            `json:"abandoned"`
}

type versionInfo struct {
	Version    string            `json:"version"`
	Source     sourceInfo        `json:"source"`
	Dist       distInfo          `json:"dist"`
	Require    map[string]string `json:"require"`
	RequireDev map[string]string `json:"require-dev"`
	Replace    map[string]string `json:"replace"`
	Provide    map[string]string `json:"provide"`
	Conflict   map[string]string `json:"conflict"`
}

type sourceInfo struct {
	Type      string `json:"type"`
	URL       string `json:"url"`
	Reference string `json:"reference"`
}

type distInfo struct {
	Type   string `json:"type"`
	URL    string `json:"url"`
	Shasum string `json:"shasum"`
}

// Client is the Packagist-wire registry client: it fetches a package's
// full version history from "{baseURL}/packages/{name}.json" and
// converts it into this core's manifest.Entry representation, the same
// translation boundary MaxSukhanov-git_pkgs_registries draws between
// its wire structs and its own core.Package/core.Version/
// core.Dependency types.
type Client struct {
	BaseURL string
	Actor   *Actor
}

// NewClient returns a Client pointed at Packagist's default host,
// spec.md §4.B's "baseURL defaults to https://packagist.org."
func NewClient(actor *Actor) *Client {
	return &Client{BaseURL: "https://packagist.org", Actor: actor}
}

// FetchEntry retrieves and decodes one package's full version history.
func (c *Client) FetchEntry(ctx context.Context, id manifest.PackageID) (*manifest.Entry, error) {
	url := fmt.Sprintf("%s/packages/%s.json", strings.TrimSuffix(c.BaseURL, "/"), id.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, perr.Wrap(perr.KindInput, err, "registry: build request for %s", id)
	}
	req.Header.Set("Accept-Encoding", acceptEncodingHeader)

	resp, err := c.Actor.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, perr.WithPackage(perr.New(perr.KindNotFound, "registry: package not found"), id.String())
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, perr.WithHost(perr.WithPackage(
			perr.New(perr.KindAuth, "registry: unauthorized (status %d)", resp.StatusCode),
			id.String()), req.URL.Host)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, perr.WithPackage(perr.New(perr.KindNetwork, "registry: unexpected status %s", resp.Status), id.String())
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, perr.Wrap(perr.KindNetwork, err, "registry: read body for %s", id)
	}

	var parsed packageResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, perr.WithPackage(perr.Wrap(perr.KindInput, err, "registry: decode package json"), id.String())
	}

	return convertEntry(id, parsed.Package)
}

func convertEntry(id manifest.PackageID, pkg packageInfo) (*manifest.Entry, error) {
	entry := &manifest.Entry{ID: id, Versions: make([]manifest.PackageVersion, 0, len(pkg.Versions))}

	var abandoned *string
	switch v := pkg.Abandoned.(type) {
	case string:
		abandoned = &v
	case bool:
		if v {
			empty := ""
			abandoned = &empty
		}
	}

	for raw, vi := range pkg.Versions {
		pv, err := convertVersion(id, raw, vi, abandoned)
		if err != nil {
			// A single malformed version record does not invalidate the
			// whole entry; it is dropped here without being logged (spec.md
			// §4.C's "skip malformed version, continue").
			continue
		}
		entry.Versions = append(entry.Versions, pv)
	}
	return entry, nil
}

func convertVersion(id manifest.PackageID, raw string, vi versionInfo, abandoned *string) (manifest.PackageVersion, error) {
	v, err := version.Parse(vi.Version)
	if err != nil {
		v, err = version.Parse(raw)
		if err != nil {
			return manifest.PackageVersion{}, err
		}
	}

	pv := manifest.PackageVersion{
		ID:        id,
		Version:   v,
		Abandoned: abandoned,
	}
	if vi.Source.URL != "" {
		pv.Source = &manifest.Source{Type: vi.Source.Type, URL: vi.Source.URL, Reference: vi.Source.Reference}
	}
	if vi.Dist.URL != "" {
		pv.Dist = &manifest.Dist{Type: vi.Dist.Type, URL: vi.Dist.URL, SHA1: vi.Dist.Shasum}
	}

	pv.Requires = constraintMap(vi.Require)
	pv.RequiresDev = constraintMap(vi.RequireDev)
	pv.Replaces = constraintMap(vi.Replace)
	pv.Provides = constraintMap(vi.Provide)
	pv.Conflicts = constraintMap(vi.Conflict)

	return pv, nil
}

// constraintMap converts a wire require/replace/provide/conflict map
// into PackageID-keyed constraints. Platform pseudo-package names
// ("php", "ext-json", ...) parse to a valid vendor-less PackageID and
// pass through like any other entry; the solver diverts them away from
// resolution. Only genuinely malformed names are skipped.
func constraintMap(in map[string]string) map[manifest.PackageID]version.Constraint {
	if len(in) == 0 {
		return nil
	}
	out := make(map[manifest.PackageID]version.Constraint, len(in))
	for name, raw := range in {
		id, err := manifest.ParsePackageID(name)
		if err != nil {
			continue
		}
		c, err := version.ParseConstraint(raw)
		if err != nil {
			continue
		}
		out[id] = c
	}
	return out
}
