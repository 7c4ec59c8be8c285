// Package search implements a web-search adapter backed by the Tavily API.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	agentcore "github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/logging"
	"github.com/stake-plus/osintops/src/shared/osint"
	"github.com/stake-plus/osintops/src/webclient"
)

// Name is the adapter's registry name.
const Name = "tavily-search"

const defaultEndpoint = "https://api.tavily.com/search"

// Config controls the search adapter.
type Config struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	Trust      float64
	Timeout    time.Duration
}

// Adapter queries the search API and reports result URLs and their hosts.
type Adapter struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

// New builds the adapter. A missing API key leaves it registered but
// unavailable.
func New(cfg Config, deps agentcore.RuntimeDeps) *Adapter {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	client := deps.HTTP
	if client == nil {
		client = webclient.NewDefault(cfg.Timeout)
	}
	return &Adapter{
		cfg:    cfg,
		client: client,
		logger: logging.OrNop(deps.Logger).Named("search"),
		now:    time.Now,
	}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Available() (bool, string) {
	if strings.TrimSpace(a.cfg.APIKey) == "" {
		return false, "tavily_api_key not configured"
	}
	return true, ""
}

// Capability returns the registry row.
func (a *Adapter) Capability() agentcore.Capability {
	return agentcore.Capability{
		Category:    osint.CategorySearch,
		TargetTypes: []osint.TargetType{osint.TargetDomain, osint.TargetUsername, osint.TargetEmail},
		MaxDuration: a.cfg.Timeout,
		Trust:       a.cfg.Trust,
		Schema:      Schema(),
		Synopsis:    "Tavily web search for pages mentioning the target",
	}
}

// Schema maps the adapter's raw kinds.
func Schema() agentcore.Schema {
	return agentcore.Schema{Kinds: map[string]osint.FindingCategory{
		"url":       osint.FindingURL,
		"subdomain": osint.FindingSubdomain,
		"domain":    osint.FindingDomain,
	}}
}

type request struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type response struct {
	Results []struct {
		Title string  `json:"title"`
		URL   string  `json:"url"`
		Score float64 `json:"score"`
	} `json:"results"`
}

func query(target osint.Target) string {
	value := strings.TrimSpace(target.Value)
	switch target.Type {
	case osint.TargetDomain:
		return "site:" + strings.ToLower(strings.Trim(value, "."))
	case osint.TargetUsername:
		return strconv.Quote(strings.TrimPrefix(value, "@"))
	default:
		return strconv.Quote(value)
	}
}

func (a *Adapter) Collect(ctx context.Context, target osint.Target, opts agentcore.Options) ([]osint.RawFinding, error) {
	if ok, reason := a.Available(); !ok {
		return nil, agentcore.Permanent(Name, errors.New(reason))
	}
	resp, err := webclient.PostJSON(ctx, a.client, a.cfg.Endpoint,
		map[string]string{"Authorization": "Bearer " + a.cfg.APIKey},
		request{Query: query(target), MaxResults: a.cfg.MaxResults, SearchDepth: "basic"})
	if err != nil {
		return nil, agentcore.Transient(Name, err)
	}

	switch {
	case resp.Status == http.StatusTooManyRequests:
		return nil, agentcore.RateLimited(Name, webclient.RetryAfter(resp.Header, a.now()),
			statusError(resp))
	case webclient.Retryable(resp.Status):
		return nil, agentcore.Transient(Name, statusError(resp))
	case resp.Status >= 400:
		return nil, agentcore.Permanent(Name, statusError(resp))
	}

	var decoded response
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, agentcore.Transient(Name, fmt.Errorf("decode response: %w", err))
	}

	domain := ""
	if target.Type == osint.TargetDomain {
		domain = strings.ToLower(strings.Trim(strings.TrimSpace(target.Value), "."))
	}
	var out []osint.RawFinding
	seenHosts := map[string]bool{}
	add := func(attrs map[string]string) {
		out = append(out, osint.RawFinding{TaskID: opts.TaskID, Adapter: Name, Attributes: attrs})
	}
	for _, result := range decoded.Results {
		parsed, err := url.Parse(result.URL)
		if err != nil || parsed.Hostname() == "" {
			continue
		}
		add(map[string]string{
			"kind":  "url",
			"value": result.URL,
			"title": result.Title,
			"score": strconv.FormatFloat(result.Score, 'f', 3, 64),
		})
		host := strings.ToLower(parsed.Hostname())
		if seenHosts[host] {
			continue
		}
		seenHosts[host] = true
		kind := "domain"
		if domain != "" && strings.HasSuffix(host, "."+domain) {
			kind = "subdomain"
		}
		add(map[string]string{"kind": kind, "value": host})
	}
	a.logger.Debug("search finished",
		zap.String("task", opts.TaskID), zap.Int("results", len(decoded.Results)))
	return out, nil
}

func statusError(resp webclient.Response) error {
	body := strings.TrimSpace(string(resp.Body))
	if len(body) > 512 {
		body = body[:512]
	}
	return &logging.StatusError{Status: resp.Status, Body: body}
}
