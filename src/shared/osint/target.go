package osint

import (
	"fmt"
	"strings"
	"unicode"
)

// TargetType identifies what kind of identifier an investigation is about.
type TargetType string

const (
	TargetDomain   TargetType = "domain"
	TargetUsername TargetType = "username"
	TargetPhone    TargetType = "phone"
	TargetEmail    TargetType = "email"
)

// TargetTypes lists every supported target type in a stable order.
var TargetTypes = []TargetType{TargetDomain, TargetUsername, TargetPhone, TargetEmail}

// ParseTargetType maps free-form operator input onto a TargetType.
func ParseTargetType(raw string) (TargetType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "domain", "host", "hostname":
		return TargetDomain, nil
	case "username", "user", "handle", "account":
		return TargetUsername, nil
	case "phone", "phone_number", "msisdn":
		return TargetPhone, nil
	case "email", "mail", "e-mail":
		return TargetEmail, nil
	}
	return "", fmt.Errorf("%w: unknown target type %q", ErrInvalidTarget, raw)
}

// Target is the identifier submitted by the operator.
type Target struct {
	Type  TargetType `json:"type"`
	Value string     `json:"value"`
}

func (t Target) String() string {
	return string(t.Type) + ":" + t.Value
}

// Validate performs shape checks only; adapters own deeper validation.
func (t Target) Validate() error {
	value := strings.TrimSpace(t.Value)
	if value == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidTarget)
	}
	switch t.Type {
	case TargetDomain:
		if !strings.Contains(strings.Trim(value, "."), ".") || strings.ContainsAny(value, " /@") {
			return fmt.Errorf("%w: %q is not a domain", ErrInvalidTarget, value)
		}
	case TargetUsername:
		if strings.ContainsAny(value, " \t\n/") {
			return fmt.Errorf("%w: %q is not a username", ErrInvalidTarget, value)
		}
	case TargetPhone:
		digits := 0
		for _, r := range value {
			if unicode.IsDigit(r) {
				digits++
			}
		}
		if digits < 5 {
			return fmt.Errorf("%w: %q is not a phone number", ErrInvalidTarget, value)
		}
	case TargetEmail:
		at := strings.LastIndex(value, "@")
		if at <= 0 || at == len(value)-1 || !strings.Contains(value[at+1:], ".") {
			return fmt.Errorf("%w: %q is not an email address", ErrInvalidTarget, value)
		}
	default:
		return fmt.Errorf("%w: unknown target type %q", ErrInvalidTarget, t.Type)
	}
	return nil
}

// Category is a collection technique an operator can put in scope.
type Category string

const (
	CategorySubdomainEnum Category = "subdomain-enum"
	CategoryAccountSearch Category = "account-search"
	CategoryPhoneLookup   Category = "phone-lookup"
	CategorySurfaceScan   Category = "surface-scan"
	CategorySearch        Category = "search"
	CategoryEmailLookup   Category = "email-lookup"
)

// Categories lists every known technique category.
var Categories = []Category{
	CategorySubdomainEnum,
	CategoryAccountSearch,
	CategoryPhoneLookup,
	CategorySurfaceScan,
	CategorySearch,
	CategoryEmailLookup,
}

// ParseCategory accepts both dashed and underscored spellings.
func ParseCategory(raw string) (Category, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "-")
	for _, c := range Categories {
		if string(c) == key {
			return c, nil
		}
	}
	return "", fmt.Errorf("osint: unknown scope category %q", raw)
}

// ParseScope parses a list of categories, dropping duplicates.
func ParseScope(raw []string) ([]Category, error) {
	seen := map[Category]struct{}{}
	out := make([]Category, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		c, err := ParseCategory(r)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}
