package socialpresence

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/stake-plus/osintops/src/logging"
)

// Site describes a profile page. URL contains {{username}}. Sites that answer
// 200 for unknown users set NotFoundMarker to a body substring shown instead.
type Site struct {
	Name           string `yaml:"name"`
	URL            string `yaml:"url"`
	NotFoundMarker string `yaml:"not_found_marker"`
}

// DefaultSites is the built-in site list.
func DefaultSites() []Site {
	return []Site{
		{Name: "GitHub", URL: "https://github.com/{{username}}"},
		{Name: "GitLab", URL: "https://gitlab.com/{{username}}"},
		{Name: "Keybase", URL: "https://keybase.io/{{username}}"},
		{Name: "DEV", URL: "https://dev.to/{{username}}"},
		{Name: "Hacker News", URL: "https://news.ycombinator.com/user?id={{username}}", NotFoundMarker: "No such user."},
	}
}

// HTTPProbe requests a site's profile page.
type HTTPProbe struct {
	Site   Site
	Client *http.Client
}

func (p *HTTPProbe) Name() string { return p.Site.Name }

func (p *HTTPProbe) Lookup(ctx context.Context, handle string) (*Profile, error) {
	profileURL := strings.ReplaceAll(p.Site.URL, "{{username}}", url.PathEscape(handle))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "osintops/1.0")
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, ErrNoData
	case resp.StatusCode >= 400:
		return nil, &logging.StatusError{Status: resp.StatusCode}
	}
	if p.Site.NotFoundMarker != "" {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if strings.Contains(string(body), p.Site.NotFoundMarker) {
			return nil, ErrNoData
		}
	}
	return &Profile{Site: p.Site.Name, Handle: handle, URL: profileURL}, nil
}
