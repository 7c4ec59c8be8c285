package config

import (
	"time"

	"github.com/stake-plus/osintops/src/controller"
)

// Config is the full runtime configuration of osintd.
type Config struct {
	Base
	Agents     AgentsConfig
	Controller controller.Config
	Service    ServiceConfig
	API        APIConfig
}

// ServiceConfig tunes investigation lifecycle handling.
type ServiceConfig struct {
	DefaultDeadline time.Duration
	MaxDeadline     time.Duration
	ReportCacheTTL  time.Duration
	TraceBuffer     int
	TraceStream     string
}

// APIConfig configures the inbound HTTP API.
type APIConfig struct {
	ListenAddr         string
	RateLimitPerMinute int
	AllowedOrigins     []string
	TLSCertFile        string
	TLSKeyFile         string
}

// Load assembles the configuration from the settings cache, environment and
// adapter file.
func Load() (Config, error) {
	agents, err := LoadAgentsConfig()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Base:       LoadBase(),
		Agents:     agents,
		Controller: LoadControllerConfig(),
		Service: ServiceConfig{
			DefaultDeadline: getSeconds("default_deadline_seconds", "DEFAULT_DEADLINE_SECONDS", 600),
			MaxDeadline:     getSeconds("max_deadline_seconds", "MAX_DEADLINE_SECONDS", 3600),
			ReportCacheTTL:  getSeconds("report_cache_ttl_seconds", "REPORT_CACHE_TTL_SECONDS", 86400),
			TraceBuffer:     getIntSetting("trace_buffer", "TRACE_BUFFER", 1024),
			TraceStream:     GetSetting("trace_stream", "TRACE_STREAM", "osint.traces"),
		},
		API: APIConfig{
			ListenAddr:         GetSetting("listen_addr", "LISTEN_ADDR", ":8080"),
			RateLimitPerMinute: getIntSetting("rate_limit_per_minute", "RATE_LIMIT_PER_MINUTE", 30),
			AllowedOrigins:     parseOrigins(GetSetting("allowed_origins", "ALLOWED_ORIGINS", "*")),
			TLSCertFile:        GetSetting("tls_cert_file", "TLS_CERT_FILE", ""),
			TLSKeyFile:         GetSetting("tls_key_file", "TLS_KEY_FILE", ""),
		},
	}, nil
}

// LoadControllerConfig reads worker pool and retry knobs.
func LoadControllerConfig() controller.Config {
	return controller.Config{
		Workers:     getIntSetting("worker_pool_size", "WORKER_POOL_SIZE", 8),
		MaxAttempts: getIntSetting("max_attempts", "MAX_ATTEMPTS", 3),
		BaseDelay:   getMillis("backoff_base_ms", "BACKOFF_BASE_MS", 1000),
		MaxDelay:    getMillis("backoff_max_ms", "BACKOFF_MAX_MS", 30000),
		Jitter:      getFloatSetting("backoff_jitter", "BACKOFF_JITTER", 0.2),
		GracePeriod: getMillis("grace_period_ms", "GRACE_PERIOD_MS", 5000),
	}
}

func parseOrigins(raw string) []string {
	if raw == "*" {
		return []string{"*"}
	}
	return parseCSV(raw)
}
