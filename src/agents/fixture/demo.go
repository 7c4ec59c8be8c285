package fixture

import (
	"fmt"
	"strings"
	"time"

	agentcore "github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/shared/osint"
)

// Register adds the offline demo adapters to a registry. Their output is
// derived from the target value so that the demo produces overlapping evidence
// the same way real tools do.
func Register(reg *agentcore.Registry, target osint.Target) error {
	value := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(target.Value), "@"))
	schema := Schema()

	demo := []struct {
		adapter *Adapter
		cap     agentcore.Capability
	}{
		{
			adapter: New("demo-subdomains", Step{Delay: 150 * time.Millisecond, Findings: []map[string]string{
				Attrs("subdomain", "www."+value),
				Attrs("subdomain", "mail."+value),
				Attrs("subdomain", "dev."+value),
			}}),
			cap: agentcore.Capability{
				Category: osint.CategorySubdomainEnum, TargetTypes: []osint.TargetType{osint.TargetDomain},
				MaxDuration: 5 * time.Second, Trust: 0.8, Schema: schema,
				Synopsis: "Scripted subdomain enumeration",
			},
		},
		{
			adapter: New("demo-search",
				Fail(agentcore.Transient("demo-search", fmt.Errorf("upstream reset"))),
				Step{Delay: 100 * time.Millisecond, Findings: []map[string]string{
					Attrs("subdomain", "WWW."+value+"."),
					Attrs("url", "https://"+value+"/about/"),
				}}),
			cap: agentcore.Capability{
				Category: osint.CategorySearch, TargetTypes: []osint.TargetType{osint.TargetDomain, osint.TargetUsername, osint.TargetEmail},
				MaxDuration: 5 * time.Second, Trust: 0.5, Schema: schema,
				Synopsis: "Scripted web search that fails once before answering",
			},
		},
		{
			adapter: New("demo-accounts", Step{Delay: 120 * time.Millisecond, Findings: []map[string]string{
				Attrs("account-handle", "github.com/"+value, "site", "GitHub"),
				Attrs("account-handle", "reddit.com/user/"+value, "site", "Reddit"),
			}}),
			cap: agentcore.Capability{
				Category: osint.CategoryAccountSearch, TargetTypes: []osint.TargetType{osint.TargetUsername},
				MaxDuration: 5 * time.Second, Trust: 0.7, Schema: schema,
				Synopsis: "Scripted account discovery",
			},
		},
		{
			adapter: New("demo-phone", Step{Delay: 80 * time.Millisecond, Findings: []map[string]string{
				Attrs("phone-carrier-record", "Demo Mobile", "line_type", "mobile"),
				Attrs("phone-location", "US"),
			}}),
			cap: agentcore.Capability{
				Category: osint.CategoryPhoneLookup, TargetTypes: []osint.TargetType{osint.TargetPhone},
				MaxDuration: 5 * time.Second, Trust: 0.9, Schema: schema,
				Synopsis: "Scripted phone carrier lookup",
			},
		},
	}

	for _, d := range demo {
		if err := reg.Add(d.adapter, d.cap); err != nil {
			return err
		}
	}
	return nil
}
