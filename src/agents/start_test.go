package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stake-plus/osintops/src/agents/search"
	"github.com/stake-plus/osintops/src/agents/tools"
	sharedconfig "github.com/stake-plus/osintops/src/config"
	"github.com/stake-plus/osintops/src/shared/osint"
)

func TestStartAllRegistersConfiguredAdapters(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	cfg := sharedconfig.AgentsConfig{
		HTTPTimeout: time.Second,
		Tools:       tools.Defaults(),
		Disabled:    []string{"bbot"},
		Search:      sharedconfig.SearchConfig{Enabled: true},
	}

	registry, err := StartAll(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer registry.Stop(context.Background())

	byName := map[string]bool{}
	for _, d := range registry.Describe() {
		byName[d.Name] = d.Available
	}
	assert.NotContains(t, byName, "bbot")
	assert.Contains(t, byName, "amass")
	assert.False(t, byName["amass"], "binary is not on PATH")
	assert.False(t, byName[search.Name], "no API key")
	assert.True(t, byName["social-presence"])

	refs, err := registry.Resolve(osint.TargetUsername, nil)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "social-presence", refs[0].Name())

	_, err = registry.Resolve(osint.TargetPhone, nil)
	assert.ErrorIs(t, err, osint.ErrUnsupportedTarget)
}
