package config

import (
	"time"

	"github.com/stake-plus/osintops/src/agents/tools"
)

// AgentsConfig exposes feature gates + knobs for the adapter registry.
type AgentsConfig struct {
	HTTPTimeout  time.Duration
	AdaptersFile string
	Tools        []tools.ToolDef
	Disabled     []string

	Search SearchConfig
}

// SearchConfig configures the web-search adapter.
type SearchConfig struct {
	Enabled    bool
	APIKey     string
	Endpoint   string
	MaxResults int
	Trust      float64
}

// LoadAgentsConfig reads configuration values for the adapter subsystem.
// Tool definitions are the built-in defaults overlaid with the YAML file.
func LoadAgentsConfig() (AgentsConfig, error) {
	adaptersFile := GetSetting("adapters_file", "OSINT_ADAPTERS_FILE", "config/adapters.yaml")
	overrides, err := tools.LoadFile(adaptersFile)
	if err != nil {
		return AgentsConfig{}, err
	}

	return AgentsConfig{
		HTTPTimeout:  getSeconds("agents_http_timeout_seconds", "AGENTS_HTTP_TIMEOUT_SECONDS", 90),
		AdaptersFile: adaptersFile,
		Tools:        tools.Merge(tools.Defaults(), overrides),
		Disabled:     parseCSV(GetSetting("disabled_adapters", "OSINT_DISABLED_ADAPTERS", "")),
		Search: SearchConfig{
			Enabled:    getBoolSetting("enable_search", "OSINT_ENABLE_SEARCH", true),
			APIKey:     GetSetting("tavily_api_key", "TAVILY_API_KEY", ""),
			Endpoint:   GetSetting("tavily_endpoint", "TAVILY_ENDPOINT", ""),
			MaxResults: getIntSetting("search_max_results", "SEARCH_MAX_RESULTS", 10),
			Trust:      getFloatSetting("search_trust", "SEARCH_TRUST", 0.5),
		},
	}, nil
}
