package tools

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stake-plus/osintops/src/shared/osint"
)

func runParser(t *testing.T, profile string, target osint.Target, lines ...string) ([]map[string]string, bool) {
	t.Helper()
	p, ok := LookupProfile(profile)
	require.True(t, ok, profile)
	parser := p.newParser(target)
	var out []map[string]string
	limited := false
	for _, line := range lines {
		attrs, rl := parser.Line(line)
		out = append(out, attrs...)
		limited = limited || rl
	}
	return append(out, parser.Flush()...), limited
}

func TestAmassParser(t *testing.T) {
	got, _ := runParser(t, "amass", osint.Target{Type: osint.TargetDomain, Value: "example.com"},
		"www.example.com",
		"",
		"Querying crt.sh for example.com subdomains",
		`{"name":"api.example.com","addresses":[{"ip":"10.0.0.1"}]}`,
		"mail.example.com (FQDN) --> a_record --> 93.184.216.34 (IPAddress)",
	)
	want := []map[string]string{
		{"kind": "subdomain", "value": "www.example.com"},
		{"kind": "subdomain", "value": "api.example.com"},
		{"kind": "ip", "value": "10.0.0.1", "host": "api.example.com"},
		{"kind": "subdomain", "value": "mail.example.com"},
		{"kind": "ip", "value": "93.184.216.34", "host": "mail.example.com"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("amass findings mismatch (-want +got):\n%s", diff)
	}
}

func TestBbotParser(t *testing.T) {
	got, _ := runParser(t, "bbot", osint.Target{Type: osint.TargetDomain, Value: "example.com"},
		`{"type":"DNS_NAME","data":"www.example.com","module":"crt","tags":["subdomain","in-scope"]}`,
		`{"type":"SCAN","data":{"name":"scan"}}`,
		`not json`,
		`{"type":"OPEN_TCP_PORT","data":"www.example.com:443","module":"portscan"}`,
	)
	want := []map[string]string{
		{"type": "DNS_NAME", "data": "www.example.com", "module": "crt", "tags": "in-scope,subdomain"},
		{"type": "OPEN_TCP_PORT", "data": "www.example.com:443", "module": "portscan"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("bbot findings mismatch (-want +got):\n%s", diff)
	}
}

func TestMaigretParser(t *testing.T) {
	got, _ := runParser(t, "maigret", osint.Target{Type: osint.TargetUsername, Value: "@alice"},
		"[*] Checking username alice on:",
		"[+] GitHub: https://github.com/alice",
		"[+] GitHub: https://github.com/alice",
		"[-] Reddit: Not found!",
		`{"sitename":"GitLab","url_user":"https://gitlab.com/alice","status":{"status":"Claimed"}}`,
		`{"status":{"status":"Available","site_name":"Medium","url":"https://medium.com/@alice"}}`,
	)
	want := []map[string]string{
		{"kind": "account", "value": "https://github.com/alice", "site": "GitHub", "username": "alice"},
		{"kind": "account", "value": "https://gitlab.com/alice", "site": "GitLab", "username": "alice"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("maigret findings mismatch (-want +got):\n%s", diff)
	}
}

func TestPhoneParserFoldsFields(t *testing.T) {
	got, _ := runParser(t, "phoneinfoga", osint.Target{Type: osint.TargetPhone, Value: "+1 555 0100"},
		"Running scan for phone number +15550100...",
		"Results for local",
		"Raw local: 5550100",
		"Country: US",
		"Carrier: Verizon",
		"Line type: mobile",
		"Valid: true",
		"Country code: +1",
		"Country: CA",
	)
	want := []map[string]string{
		{"kind": "carrier", "value": "Verizon", "line_type": "mobile", "valid": "true"},
		{"kind": "location", "value": "US", "country_code": "+1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("phone findings mismatch (-want +got):\n%s", diff)
	}
}

func TestHoleheParser(t *testing.T) {
	target := osint.Target{Type: osint.TargetEmail, Value: "Alice@Example.com"}
	got, limited := runParser(t, "holehe", target,
		"[+] Email used, [-] Email not used, [x] Rate limit",
		"[+] instagram.com",
		"[-] twitter.com",
	)
	assert.False(t, limited)
	assert.Equal(t, []map[string]string{
		{"kind": "registration", "value": "instagram.com", "email": "alice@example.com"},
	}, got)

	_, limited = runParser(t, "holehe", target, "[x] amazon.com")
	assert.True(t, limited)
}

func TestPhoneTarget(t *testing.T) {
	cases := map[string]string{
		"+1 (555) 010-0100": "+15550100100",
		"0044 20 7946 0000": "+442079460000",
		"442079460000":      "+442079460000",
		"5550100":           "5550100",
	}
	for in, want := range cases {
		assert.Equal(t, want, phoneTarget(osint.Target{Type: osint.TargetPhone, Value: in}), in)
	}
}

func TestSchemasResolveParserOutput(t *testing.T) {
	p, _ := LookupProfile("bbot")
	category, value, ok := p.Schema.Resolve(osint.RawFinding{Attributes: map[string]string{
		"type": "URL", "data": "https://example.com/login",
	}})
	require.True(t, ok)
	assert.Equal(t, osint.FindingURL, category)
	assert.Equal(t, "https://example.com/login", value)

	_, _, ok = p.Schema.Resolve(osint.RawFinding{Attributes: map[string]string{"type": "SCAN", "data": "x"}})
	assert.False(t, ok)
}
