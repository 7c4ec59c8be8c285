// Package evidence normalizes raw adapter output and deduplicates it into
// findings.
package evidence

import (
	"net"
	"net/url"
	"strings"

	"github.com/stake-plus/osintops/src/shared/osint"
)

// Normalize returns the canonical form of a value for its category. An empty
// result means the value carries nothing usable.
func Normalize(category osint.FindingCategory, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	switch category {
	case osint.FindingSubdomain, osint.FindingDomain:
		value = strings.ToLower(value)
		if u, err := url.Parse(value); err == nil && u.Host != "" {
			value = u.Hostname()
		}
		return strings.Trim(value, ".")
	case osint.FindingEmail:
		return strings.ToLower(strings.TrimPrefix(value, "mailto:"))
	case osint.FindingIPAddress:
		if ip := net.ParseIP(value); ip != nil {
			return ip.String()
		}
		return strings.ToLower(value)
	case osint.FindingURL:
		return normalizeURL(value)
	case osint.FindingAccountHandle:
		return strings.ToLower(strings.TrimPrefix(value, "@"))
	case osint.FindingOpenPort:
		return strings.ToLower(value)
	default:
		return strings.ToLower(strings.Join(strings.Fields(value), " "))
	}
}

func normalizeURL(value string) string {
	u, err := url.Parse(value)
	if err != nil || u.Host == "" {
		return strings.TrimRight(value, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.TrimSuffix(strings.ToLower(u.Host), ".")
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return strings.TrimRight(u.String(), "/")
}
