package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stake-plus/osintops/src/shared/osint"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		category osint.FindingCategory
		in, want string
	}{
		{osint.FindingSubdomain, " WWW.Example.COM. ", "www.example.com"},
		{osint.FindingSubdomain, "https://Mail.Example.com/login", "mail.example.com"},
		{osint.FindingDomain, "Example.org", "example.org"},
		{osint.FindingEmail, "Alice@Example.COM", "alice@example.com"},
		{osint.FindingEmail, "mailto:bob@example.com", "bob@example.com"},
		{osint.FindingAccountHandle, "@JohnDoe", "johndoe"},
		{osint.FindingURL, "HTTPS://Example.com/About/", "https://example.com/About"},
		{osint.FindingURL, "https://example.com/", "https://example.com"},
		{osint.FindingURL, "https://example.com/a#frag", "https://example.com/a"},
		{osint.FindingIPAddress, "2001:DB8::1", "2001:db8::1"},
		{osint.FindingPhoneCarrier, "  Demo   Mobile ", "demo mobile"},
		{osint.FindingSubdomain, "   ", ""},
		{osint.FindingSubdomain, ".", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.category, tc.in), "%s %q", tc.category, tc.in)
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint(osint.FindingSubdomain, "www.example.com")
	assert.Len(t, a, 16)
	assert.Equal(t, a, Fingerprint(osint.FindingSubdomain, "www.example.com"))
	assert.NotEqual(t, a, Fingerprint(osint.FindingDomain, "www.example.com"))
	assert.NotEqual(t, a, Fingerprint(osint.FindingSubdomain, "mail.example.com"))
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 0.0, Confidence(nil))
	assert.InDelta(t, 0.6, Confidence([]float64{0.6}), 1e-9)
	assert.InDelta(t, 0.92, Confidence([]float64{0.6, 0.8}), 1e-9)
	assert.Equal(t, Confidence([]float64{0.6, 0.8, 0.5}), Confidence([]float64{0.5, 0.8, 0.6}))
	assert.GreaterOrEqual(t, Confidence([]float64{0.6, 0.1}), Confidence([]float64{0.6}))
	assert.Equal(t, 1.0, Confidence([]float64{1.5}))
}
