package tools

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"unicode"

	agentcore "github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/shared/osint"
)

// lineParser turns tool output into attribute sets. Parsers are created per
// invocation and may keep state across lines.
type lineParser interface {
	// Line consumes one line of stdout. rateLimited reports that the tool
	// signalled throttling for part of its work.
	Line(line string) (attrs []map[string]string, rateLimited bool)
	// Flush returns anything accumulated after the tool exits.
	Flush() []map[string]string
}

// Profile describes how to prepare a target for a tool and read its output.
type Profile struct {
	Name      string
	Schema    agentcore.Schema
	Prepare   func(target osint.Target) string
	newParser func(target osint.Target) lineParser
}

var profiles = map[string]Profile{
	"amass": {
		Name: "amass",
		Schema: agentcore.Schema{Kinds: map[string]osint.FindingCategory{
			"subdomain": osint.FindingSubdomain,
			"ip":        osint.FindingIPAddress,
		}},
		Prepare:   domainTarget,
		newParser: func(osint.Target) lineParser { return amassParser{} },
	},
	"bbot": {
		Name: "bbot",
		Schema: agentcore.Schema{KindKey: "type", ValueKey: "data", Kinds: map[string]osint.FindingCategory{
			"DNS_NAME":      osint.FindingSubdomain,
			"IP_ADDRESS":    osint.FindingIPAddress,
			"OPEN_TCP_PORT": osint.FindingOpenPort,
			"URL":           osint.FindingURL,
			"EMAIL_ADDRESS": osint.FindingEmail,
		}},
		Prepare:   domainTarget,
		newParser: func(osint.Target) lineParser { return bbotParser{} },
	},
	"maigret": {
		Name: "maigret",
		Schema: agentcore.Schema{Kinds: map[string]osint.FindingCategory{
			"account": osint.FindingAccountHandle,
		}},
		Prepare: usernameTarget,
		newParser: func(t osint.Target) lineParser {
			return &maigretParser{username: usernameTarget(t), seen: map[string]bool{}}
		},
	},
	"phoneinfoga": {
		Name: "phoneinfoga",
		Schema: agentcore.Schema{Kinds: map[string]osint.FindingCategory{
			"carrier":  osint.FindingPhoneCarrier,
			"location": osint.FindingPhoneLocation,
		}},
		Prepare:   phoneTarget,
		newParser: func(osint.Target) lineParser { return &phoneParser{fields: map[string]string{}} },
	},
	"holehe": {
		Name: "holehe",
		Schema: agentcore.Schema{Kinds: map[string]osint.FindingCategory{
			"registration": osint.FindingEmailRegistration,
		}},
		Prepare: func(t osint.Target) string { return strings.ToLower(strings.TrimSpace(t.Value)) },
		newParser: func(t osint.Target) lineParser {
			return holeheParser{email: strings.ToLower(strings.TrimSpace(t.Value))}
		},
	},
}

// LookupProfile returns the named output profile.
func LookupProfile(name string) (Profile, bool) {
	p, ok := profiles[name]
	return p, ok
}

// ProfileNames lists the known profiles.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func domainTarget(t osint.Target) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(t.Value)), ".")
}

func usernameTarget(t osint.Target) string {
	return strings.TrimPrefix(strings.TrimSpace(t.Value), "@")
}

// phoneTarget strips formatting and ensures the international prefix.
func phoneTarget(t osint.Target) string {
	raw := strings.TrimSpace(t.Value)
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) || (r == '+' && b.Len() == 0) {
			b.WriteRune(r)
		}
	}
	number := b.String()
	switch {
	case strings.HasPrefix(number, "+"):
	case strings.HasPrefix(number, "00"):
		number = "+" + number[2:]
	case len(number) > 10:
		number = "+" + number
	}
	return number
}

// amass prints either bare names, JSON objects, or graph lines like
// "www.example.com (FQDN) --> a_record --> 93.184.216.34 (IPAddress)".
type amassParser struct{}

var amassNode = regexp.MustCompile(`^(\S+)\s+\(([A-Za-z]+)\)$`)

func (amassParser) Line(line string) ([]map[string]string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}
	if strings.HasPrefix(line, "{") {
		var rec struct {
			Name      string `json:"name"`
			Addresses []struct {
				IP string `json:"ip"`
			} `json:"addresses"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil || rec.Name == "" {
			return nil, false
		}
		out := []map[string]string{{"kind": "subdomain", "value": rec.Name}}
		for _, addr := range rec.Addresses {
			if addr.IP != "" {
				out = append(out, map[string]string{"kind": "ip", "value": addr.IP, "host": rec.Name})
			}
		}
		return out, false
	}
	if !strings.Contains(line, " --> ") {
		if strings.ContainsAny(line, " \t") || !strings.Contains(line, ".") {
			return nil, false
		}
		return []map[string]string{{"kind": "subdomain", "value": line}}, false
	}
	parts := strings.Split(line, " --> ")
	var host string
	var out []map[string]string
	for _, part := range []string{parts[0], parts[len(parts)-1]} {
		m := amassNode.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			continue
		}
		switch m[2] {
		case "FQDN":
			if host == "" {
				host = m[1]
			}
			out = append(out, map[string]string{"kind": "subdomain", "value": m[1]})
		case "IPAddress":
			attrs := map[string]string{"kind": "ip", "value": m[1]}
			if host != "" {
				attrs["host"] = host
			}
			out = append(out, attrs)
		}
	}
	return out, false
}

func (amassParser) Flush() []map[string]string { return nil }

// bbot --json emits one event object per line.
type bbotParser struct{}

func (bbotParser) Line(line string) ([]map[string]string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return nil, false
	}
	var ev struct {
		Type   string          `json:"type"`
		Data   json.RawMessage `json:"data"`
		Module string          `json:"module"`
		Tags   []string        `json:"tags"`
	}
	if err := json.Unmarshal([]byte(line), &ev); err != nil || ev.Type == "" {
		return nil, false
	}
	var data string
	if err := json.Unmarshal(ev.Data, &data); err != nil || data == "" {
		return nil, false
	}
	attrs := map[string]string{"type": ev.Type, "data": data}
	if ev.Module != "" {
		attrs["module"] = ev.Module
	}
	if len(ev.Tags) > 0 {
		tags := append([]string(nil), ev.Tags...)
		sort.Strings(tags)
		attrs["tags"] = strings.Join(tags, ",")
	}
	return []map[string]string{attrs}, false
}

func (bbotParser) Flush() []map[string]string { return nil }

// maigret prints "[+] Site: https://..." for claimed accounts. NDJSON report
// lines are accepted too when the report is redirected to stdout.
type maigretParser struct {
	username string
	seen     map[string]bool
}

var maigretClaimed = regexp.MustCompile(`^\[\+\]\s+([^:]+):\s+(https?://\S+)`)

func (p *maigretParser) Line(line string) ([]map[string]string, bool) {
	line = strings.TrimSpace(line)
	var site, url string
	switch {
	case strings.HasPrefix(line, "{"):
		site, url = p.jsonEntry(line)
	default:
		if m := maigretClaimed.FindStringSubmatch(line); m != nil {
			site, url = strings.TrimSpace(m[1]), m[2]
		}
	}
	if url == "" || p.seen[url] {
		return nil, false
	}
	p.seen[url] = true
	return []map[string]string{{
		"kind":     "account",
		"value":    url,
		"site":     site,
		"username": p.username,
	}}, false
}

func (p *maigretParser) jsonEntry(line string) (site, url string) {
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return "", ""
	}
	status := ""
	switch s := entry["status"].(type) {
	case string:
		status = s
	case map[string]any:
		status, _ = s["status"].(string)
		if v, ok := s["site_name"].(string); ok {
			site = v
		}
		if v, ok := s["url"].(string); ok {
			url = v
		}
	}
	switch strings.ToLower(status) {
	case "claimed", "found":
	default:
		return "", ""
	}
	if site == "" {
		site, _ = entry["sitename"].(string)
	}
	if url == "" {
		url, _ = entry["url_user"].(string)
	}
	return site, url
}

func (p *maigretParser) Flush() []map[string]string { return nil }

// phoneinfoga prints "Key: value" lines that are folded into a carrier
// record and a location once the scan finishes.
type phoneParser struct {
	fields map[string]string
}

func (p *phoneParser) Line(line string) ([]map[string]string, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
	if !ok {
		return nil, false
	}
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, false
	}
	switch key {
	case "country", "carrier", "line type", "valid", "local format",
		"international format", "e164", "country code", "location":
		if _, dup := p.fields[key]; !dup {
			p.fields[key] = value
		}
	}
	return nil, false
}

func (p *phoneParser) Flush() []map[string]string {
	var out []map[string]string
	if carrier := p.fields["carrier"]; carrier != "" {
		attrs := map[string]string{"kind": "carrier", "value": carrier}
		for _, k := range []string{"line type", "valid", "international format", "e164"} {
			if v := p.fields[k]; v != "" {
				attrs[strings.ReplaceAll(k, " ", "_")] = v
			}
		}
		out = append(out, attrs)
	}
	location := p.fields["location"]
	if location == "" {
		location = p.fields["country"]
	}
	if location != "" {
		attrs := map[string]string{"kind": "location", "value": location}
		if cc := p.fields["country code"]; cc != "" {
			attrs["country_code"] = cc
		}
		out = append(out, attrs)
	}
	return out
}

// holehe marks used sites with [+], unused with [-], and throttled checks
// with [x].
type holeheParser struct {
	email string
}

var holeheLine = regexp.MustCompile(`^\[([+x-])\]\s+([A-Za-z0-9.-]+\.[A-Za-z]{2,})\b`)

func (p holeheParser) Line(line string) ([]map[string]string, bool) {
	m := holeheLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return nil, false
	}
	switch m[1] {
	case "+":
		return []map[string]string{{
			"kind":  "registration",
			"value": strings.ToLower(m[2]),
			"email": p.email,
		}}, false
	case "x":
		return nil, true
	}
	return nil, false
}

func (holeheParser) Flush() []map[string]string { return nil }
