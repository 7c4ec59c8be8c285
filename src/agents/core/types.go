package core

import (
	"time"

	"github.com/stake-plus/osintops/src/shared/osint"
)

// Options carries per-invocation parameters into an adapter.
type Options struct {
	// TaskID identifies the task the invocation belongs to.
	TaskID string
	// Attempt is 1 for the first invocation of a task.
	Attempt int
	// Deadline is the investigation deadline; the call context carries the
	// tighter per-task timeout.
	Deadline time.Time
	Params   map[string]string
}

// Schema tells the evidence store how to read an adapter's raw attributes.
type Schema struct {
	// KindKey names the attribute holding the raw record kind. Defaults to "kind".
	KindKey string
	// ValueKey names the attribute holding the value. Defaults to "value".
	ValueKey string
	// Kinds maps raw kinds onto canonical finding categories.
	Kinds map[string]osint.FindingCategory
}

// Keys returns the effective kind and value attribute names.
func (s Schema) Keys() (kindKey, valueKey string) {
	kindKey, valueKey = s.KindKey, s.ValueKey
	if kindKey == "" {
		kindKey = "kind"
	}
	if valueKey == "" {
		valueKey = "value"
	}
	return kindKey, valueKey
}

// Resolve maps a raw finding onto its canonical category and raw value.
func (s Schema) Resolve(raw osint.RawFinding) (osint.FindingCategory, string, bool) {
	kindKey, valueKey := s.Keys()
	category, ok := s.Kinds[raw.Attributes[kindKey]]
	if !ok {
		return "", "", false
	}
	value, ok := raw.Attributes[valueKey]
	if !ok {
		return "", "", false
	}
	return category, value, true
}

// Capability is one row of the static capability table.
type Capability struct {
	Adapter     string
	Category    osint.Category
	TargetTypes []osint.TargetType
	// MaxDuration is the adapter's declared maximum reasonable execution time.
	MaxDuration time.Duration
	// Trust in (0, 1] weighs the adapter's contribution to finding confidence.
	Trust    float64
	Schema   Schema
	Synopsis string
}

// Supports reports whether the capability accepts the target type.
func (c Capability) Supports(tt osint.TargetType) bool {
	for _, t := range c.TargetTypes {
		if t == tt {
			return true
		}
	}
	return false
}

// AdapterRef is what Resolve hands to the controller.
type AdapterRef struct {
	Adapter    Adapter
	Capability Capability
}

// Name returns the adapter name.
func (r AdapterRef) Name() string { return r.Capability.Adapter }

// Descriptor captures static metadata plus availability for listings.
type Descriptor struct {
	Name        string             `json:"name"`
	Category    osint.Category     `json:"category"`
	TargetTypes []osint.TargetType `json:"targetTypes"`
	MaxDuration time.Duration      `json:"maxDuration"`
	Trust       float64            `json:"trust"`
	Synopsis    string             `json:"synopsis"`
	Available   bool               `json:"available"`
	Reason      string             `json:"reason,omitempty"`
}
