package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentcore "github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/agents/fixture"
	"github.com/stake-plus/osintops/src/shared/osint"
)

func capFor(category osint.Category, types ...osint.TargetType) agentcore.Capability {
	return agentcore.Capability{Category: category, TargetTypes: types, Schema: fixture.Schema()}
}

func TestResolveSortedAndScoped(t *testing.T) {
	reg := agentcore.NewRegistry()
	require.NoError(t, reg.Add(fixture.New("Search"), capFor(osint.CategorySearch, osint.TargetDomain, osint.TargetUsername)))
	require.NoError(t, reg.Add(fixture.New("amass"), capFor(osint.CategorySubdomainEnum, osint.TargetDomain)))
	require.NoError(t, reg.Add(fixture.New("maigret"), capFor(osint.CategoryAccountSearch, osint.TargetUsername)))

	refs, err := reg.Resolve(osint.TargetDomain, nil)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "amass", refs[0].Name())
	assert.Equal(t, "search", refs[1].Name())

	refs, err = reg.Resolve(osint.TargetDomain, []osint.Category{osint.CategorySubdomainEnum})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "amass", refs[0].Name())

	_, err = reg.Resolve(osint.TargetDomain, []osint.Category{osint.CategoryPhoneLookup})
	assert.ErrorIs(t, err, osint.ErrUnsupportedTarget)

	_, err = reg.Resolve(osint.TargetPhone, nil)
	assert.ErrorIs(t, err, osint.ErrUnsupportedTarget)
}

func TestResolveSkipsUnavailable(t *testing.T) {
	reg := agentcore.NewRegistry()
	missing := fixture.New("phoneinfoga")
	missing.SetUnavailable("binary not found")
	require.NoError(t, reg.Add(missing, capFor(osint.CategoryPhoneLookup, osint.TargetPhone)))

	_, err := reg.Resolve(osint.TargetPhone, nil)
	require.ErrorIs(t, err, osint.ErrUnsupportedTarget)

	desc := reg.Describe()
	require.Len(t, desc, 1)
	assert.False(t, desc[0].Available)
	assert.Equal(t, "binary not found", desc[0].Reason)
}

func TestAddValidation(t *testing.T) {
	reg := agentcore.NewRegistry()
	require.NoError(t, reg.Add(fixture.New("amass"), capFor(osint.CategorySubdomainEnum, osint.TargetDomain)))

	assert.Error(t, reg.Add(fixture.New("AMASS"), capFor(osint.CategorySubdomainEnum, osint.TargetDomain)))
	assert.Error(t, reg.Add(fixture.New(" "), capFor(osint.CategorySearch, osint.TargetDomain)))
	assert.Error(t, reg.Add(fixture.New("notypes"), capFor(osint.CategorySearch)))
	assert.Error(t, reg.Add(nil, capFor(osint.CategorySearch, osint.TargetDomain)))
}

func TestAddDefaults(t *testing.T) {
	reg := agentcore.NewRegistry()
	require.NoError(t, reg.Add(fixture.New("holehe"), capFor(osint.CategoryEmailLookup, osint.TargetEmail)))

	desc := reg.Describe()
	require.Len(t, desc, 1)
	assert.Equal(t, 2*time.Minute, desc[0].MaxDuration)
	assert.InDelta(t, 0.6, reg.TrustFor("holehe"), 1e-9)
	assert.InDelta(t, 0.6, reg.TrustFor("unknown"), 1e-9)

	_, ok := reg.SchemaFor("HOLEHE")
	assert.True(t, ok)
}

type lifecycleAdapter struct {
	*fixture.Adapter
	startErr error
	started  bool
	stopped  bool
}

func (l *lifecycleAdapter) Start(context.Context) error {
	if l.startErr != nil {
		return l.startErr
	}
	l.started = true
	return nil
}

func (l *lifecycleAdapter) Stop(context.Context) { l.stopped = true }

func TestStartRollsBackOnFailure(t *testing.T) {
	reg := agentcore.NewRegistry()
	first := &lifecycleAdapter{Adapter: fixture.New("first")}
	second := &lifecycleAdapter{Adapter: fixture.New("second"), startErr: errors.New("no api key")}
	require.NoError(t, reg.Add(first, capFor(osint.CategorySearch, osint.TargetDomain)))
	require.NoError(t, reg.Add(second, capFor(osint.CategorySearch, osint.TargetDomain)))

	err := reg.Start(context.Background())
	require.Error(t, err)
	assert.True(t, first.started)
	assert.True(t, first.stopped)
	assert.False(t, second.stopped)

	second.startErr = nil
	require.NoError(t, reg.Start(context.Background()))
	assert.Error(t, reg.Add(fixture.New("late"), capFor(osint.CategorySearch, osint.TargetDomain)))
	reg.Stop(context.Background())
	assert.True(t, second.stopped)
}

func TestClassify(t *testing.T) {
	assert.Nil(t, agentcore.Classify("x", nil))

	typed := agentcore.RateLimited("tavily", 3*time.Second, errors.New("slow down"))
	got := agentcore.Classify("tavily", typed)
	assert.Equal(t, agentcore.ErrorRateLimited, got.Kind)
	assert.Equal(t, 3*time.Second, got.RetryAfter)

	assert.Equal(t, agentcore.ErrorRateLimited, agentcore.Classify("x", errors.New("HTTP 429")).Kind)
	assert.Equal(t, agentcore.ErrorTransient, agentcore.Classify("x", errors.New("reset by peer")).Kind)
	assert.Equal(t, agentcore.ErrorPermanent, agentcore.Classify("x", context.Canceled).Kind)
	assert.Contains(t, typed.Error(), "tavily: rate_limited")
}
