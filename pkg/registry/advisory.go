package registry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/libretto-pm/libretto/pkg/manifest"
	"github.com/libretto-pm/libretto/pkg/perr"
)

// Advisory is one security advisory entry as returned by the bulk
// advisories endpoint; this core passes it through to `audit` output
// without interpreting its fields further.
type Advisory struct {
	Title            string `json:"title"`
	CVE              string `json:"cve"`
	Link             string `json:"link"`
	AffectedVersions string `json:"affectedVersions"`
	Severity         string `json:"severity"`
}

type advisoriesResponse struct {
	Advisories map[string][]Advisory `json:"advisories"`
}

// FetchAdvisories bulk-queries the security-advisories endpoint for the
// given package names, spec.md §4.B/§9's "security-advisories POST with
// form body packages[]=vendor/name&...". The response is keyed by
// package name.
func (c *Client) FetchAdvisories(ctx context.Context, ids []manifest.PackageID) (map[manifest.PackageID][]Advisory, error) {
	form := url.Values{}
	for _, id := range ids {
		form.Add("packages[]", id.String())
	}

	endpoint := strings.TrimSuffix(c.BaseURL, "/") + "/api/security-advisories/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, perr.Wrap(perr.KindInput, err, "registry: build advisories request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept-Encoding", acceptEncodingHeader)

	resp, err := c.Actor.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, perr.New(perr.KindNetwork, "registry: advisories request returned %s", resp.Status)
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, perr.Wrap(perr.KindNetwork, err, "registry: read advisories body")
	}

	var parsed advisoriesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, perr.Wrap(perr.KindInput, err, "registry: decode advisories json")
	}

	out := make(map[manifest.PackageID][]Advisory, len(parsed.Advisories))
	for name, advisories := range parsed.Advisories {
		id, err := manifest.ParsePackageID(name)
		if err != nil {
			continue
		}
		out[id] = advisories
	}
	return out, nil
}

// NotifyDownload sends the fire-and-forget download-notification POST
// (spec.md §4.B) once a package has actually been fetched. Errors are
// intentionally swallowed past the request-construction stage: a
// notification is a best-effort telemetry signal to the registry, never
// a condition the install pipeline depends on.
func (c *Client) NotifyDownload(ctx context.Context, id manifest.PackageID, v string) {
	endpoint := strings.TrimSuffix(c.BaseURL, "/") + "/downloads/"
	form := url.Values{"name": {id.String()}, "version": {v}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.Actor.Do(ctx, req)
	if err != nil {
		return
	}
	resp.Body.Close()
}
