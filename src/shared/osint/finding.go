package osint

import "time"

// FindingCategory is the canonical category of a normalized evidence unit.
type FindingCategory string

const (
	FindingSubdomain         FindingCategory = "subdomain"
	FindingDomain            FindingCategory = "domain"
	FindingIPAddress         FindingCategory = "ip-address"
	FindingURL               FindingCategory = "url"
	FindingEmail             FindingCategory = "email"
	FindingAccountHandle     FindingCategory = "account-handle"
	FindingPhoneCarrier      FindingCategory = "phone-carrier-record"
	FindingPhoneLocation     FindingCategory = "phone-location"
	FindingEmailRegistration FindingCategory = "email-registration"
	FindingOpenPort          FindingCategory = "open-port"
)

// RawFinding is the unstructured output of one successful adapter invocation.
type RawFinding struct {
	TaskID     string            `json:"taskId"`
	Adapter    string            `json:"adapter"`
	Attributes map[string]string `json:"attributes"`
	ObservedAt time.Time         `json:"observedAt,omitempty"`
}

// Finding is a deduplicated evidence unit, unique by fingerprint within an investigation.
type Finding struct {
	InvestigationID string            `json:"investigationId"`
	Fingerprint     string            `json:"fingerprint"`
	Category        FindingCategory   `json:"category"`
	Value           string            `json:"value"`
	Sources         []string          `json:"sources"`
	Confidence      float64           `json:"confidence"`
	FirstSeen       time.Time         `json:"firstSeen"`
	LastSeen        time.Time         `json:"lastSeen"`
	Attributes      map[string]string `json:"attributes,omitempty"`
}

// Clone returns a deep copy.
func (f Finding) Clone() Finding {
	if f.Sources != nil {
		sources := make([]string, len(f.Sources))
		copy(sources, f.Sources)
		f.Sources = sources
	}
	if f.Attributes != nil {
		attrs := make(map[string]string, len(f.Attributes))
		for k, v := range f.Attributes {
			attrs[k] = v
		}
		f.Attributes = attrs
	}
	return f
}
