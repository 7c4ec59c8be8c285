// Package socialpresence checks whether a username is registered on a set of
// public profile sites.
package socialpresence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	agentcore "github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/logging"
	"github.com/stake-plus/osintops/src/shared/osint"
	"github.com/stake-plus/osintops/src/webclient"
)

// Name is the adapter's registry name.
const Name = "social-presence"

// Config enumerates tunable options for the social presence adapter.
type Config struct {
	Sites       []Site
	Concurrency int
	Trust       float64
	Timeout     time.Duration
}

// Agent probes every configured site for a username.
type Agent struct {
	cfg    Config
	probes []Probe
	logger *zap.Logger
}

// Probe looks a handle up on one site.
type Probe interface {
	Name() string
	Lookup(ctx context.Context, handle string) (*Profile, error)
}

// Profile captures one confirmed account.
type Profile struct {
	Site   string
	Handle string
	URL    string
}

// ErrNoData signals a probe found no account.
var ErrNoData = errors.New("socialpresence: no data")

// NewAgent constructs the adapter with one HTTP probe per site.
func NewAgent(cfg Config, deps agentcore.RuntimeDeps) *Agent {
	if len(cfg.Sites) == 0 {
		cfg.Sites = DefaultSites()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	client := deps.HTTP
	if client == nil {
		client = webclient.NewDefault(30 * time.Second)
	}

	probes := make([]Probe, 0, len(cfg.Sites))
	for _, site := range cfg.Sites {
		probes = append(probes, &HTTPProbe{Site: site, Client: client})
	}
	return &Agent{cfg: cfg, probes: probes, logger: logging.OrNop(deps.Logger).Named("socialpresence")}
}

func (a *Agent) Name() string { return Name }

// Capability returns the registry row.
func (a *Agent) Capability() agentcore.Capability {
	return agentcore.Capability{
		Category:    osint.CategoryAccountSearch,
		TargetTypes: []osint.TargetType{osint.TargetUsername},
		MaxDuration: a.cfg.Timeout,
		Trust:       a.cfg.Trust,
		Schema: agentcore.Schema{Kinds: map[string]osint.FindingCategory{
			"account": osint.FindingAccountHandle,
		}},
		Synopsis: "Checks public profile pages for a username",
	}
}

// Collect runs every probe and reports confirmed accounts. Individual probe
// failures are tolerated as long as some probe answered.
func (a *Agent) Collect(ctx context.Context, target osint.Target, opts agentcore.Options) ([]osint.RawFinding, error) {
	handle := strings.TrimPrefix(strings.TrimSpace(target.Value), "@")
	if handle == "" {
		return nil, agentcore.Permanent(Name, fmt.Errorf("socialpresence: empty handle"))
	}

	var (
		mu          sync.Mutex
		profiles    []*Profile
		answered    int
		rateLimited int
		lastErr     error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for _, probe := range a.probes {
		g.Go(func() error {
			profile, err := probe.Lookup(gctx, handle)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				answered++
				profiles = append(profiles, profile)
			case errors.Is(err, ErrNoData):
				answered++
			case logging.IsRateLimit(err):
				rateLimited++
				lastErr = err
			default:
				lastErr = err
				a.logger.Debug("probe failed", zap.String("site", probe.Name()), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, agentcore.Transient(Name, err)
	}
	if answered == 0 && len(a.probes) > 0 {
		if rateLimited > 0 {
			return nil, agentcore.RateLimited(Name, 0, lastErr)
		}
		return nil, agentcore.Transient(Name, lastErr)
	}

	out := make([]osint.RawFinding, 0, len(profiles))
	for _, p := range sortProfiles(profiles) {
		out = append(out, osint.RawFinding{
			TaskID:  opts.TaskID,
			Adapter: Name,
			Attributes: map[string]string{
				"kind":     "account",
				"value":    p.URL,
				"site":     p.Site,
				"username": p.Handle,
			},
		})
	}
	return out, nil
}

func sortProfiles(in []*Profile) []*Profile {
	out := append([]*Profile(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

func (p *Profile) String() string {
	return fmt.Sprintf("%s@%s", p.Handle, p.Site)
}
