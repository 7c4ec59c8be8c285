package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stake-plus/osintops/src/shared/osint"
)

const (
	defaultMaxDuration = 2 * time.Minute
	defaultTrust       = 0.6
)

// Registry holds the capability table and resolves adapters for a target.
type Registry struct {
	mu        sync.RWMutex
	adapters  map[string]Adapter
	caps      map[string]Capability
	lifecycle []Lifecycle
	started   bool
}

// NewRegistry returns an empty registry ready for registration.
func NewRegistry() *Registry {
	return &Registry{
		adapters: map[string]Adapter{},
		caps:     map[string]Capability{},
	}
}

// Add registers an adapter with its capability row. It must be invoked before Start.
func (r *Registry) Add(adapter Adapter, capability Capability) error {
	if adapter == nil {
		return fmt.Errorf("agents.Registry: nil adapter provided")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("agents.Registry: already started")
	}

	name := normalizeKey(adapter.Name())
	if name == "" {
		return fmt.Errorf("agents.Registry: adapter missing name")
	}
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("agents.Registry: adapter %q already registered", adapter.Name())
	}
	if len(capability.TargetTypes) == 0 {
		return fmt.Errorf("agents.Registry: adapter %q declares no target types", adapter.Name())
	}
	if capability.Category == "" {
		return fmt.Errorf("agents.Registry: adapter %q declares no category", adapter.Name())
	}

	capability.Adapter = name
	capability.TargetTypes = cloneTargetTypes(capability.TargetTypes)
	if capability.MaxDuration <= 0 {
		capability.MaxDuration = defaultMaxDuration
	}
	if capability.Trust <= 0 || capability.Trust > 1 {
		capability.Trust = defaultTrust
	}

	r.adapters[name] = adapter
	r.caps[name] = capability
	if lifecycle, ok := adapter.(Lifecycle); ok {
		r.lifecycle = append(r.lifecycle, lifecycle)
	}
	return nil
}

// Start initializes all lifecycle-aware adapters.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("agents.Registry: already started")
	}

	started := make([]Lifecycle, 0, len(r.lifecycle))
	for _, lifecycle := range r.lifecycle {
		if err := lifecycle.Start(ctx); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				started[i].Stop(ctx)
			}
			return err
		}
		started = append(started, lifecycle)
	}

	r.started = true
	return nil
}

// Stop tears down all lifecycle adapters in reverse order.
func (r *Registry) Stop(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.lifecycle) - 1; i >= 0; i-- {
		r.lifecycle[i].Stop(ctx)
	}
	r.started = false
}

// Resolve returns the adapters applicable to the target type within scope,
// sorted by name. An empty scope selects every category.
func (r *Registry) Resolve(targetType osint.TargetType, scope []osint.Category) ([]AdapterRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inScope := func(c osint.Category) bool {
		if len(scope) == 0 {
			return true
		}
		for _, s := range scope {
			if s == c {
				return true
			}
		}
		return false
	}

	supported := 0
	refs := []AdapterRef{}
	for name, capability := range r.caps {
		if !capability.Supports(targetType) {
			continue
		}
		if ok, _ := available(r.adapters[name]); !ok {
			continue
		}
		supported++
		if !inScope(capability.Category) {
			continue
		}
		refs = append(refs, AdapterRef{Adapter: r.adapters[name], Capability: capability})
	}

	if supported == 0 {
		return nil, fmt.Errorf("%w: no adapter handles %s targets", osint.ErrUnsupportedTarget, targetType)
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: no %s adapter within scope %v", osint.ErrUnsupportedTarget, targetType, scope)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name() < refs[j].Name() })
	return refs, nil
}

// SchemaFor returns the declared schema of an adapter.
func (r *Registry) SchemaFor(name string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	capability, ok := r.caps[normalizeKey(name)]
	return capability.Schema, ok
}

// TrustFor returns the trust weight of an adapter; unknown adapters get the default.
func (r *Registry) TrustFor(name string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if capability, ok := r.caps[normalizeKey(name)]; ok {
		return capability.Trust
	}
	return defaultTrust
}

// Describe returns the capability table with availability, sorted by name.
func (r *Registry) Describe() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.caps))
	for name, capability := range r.caps {
		ok, reason := available(r.adapters[name])
		out = append(out, Descriptor{
			Name:        name,
			Category:    capability.Category,
			TargetTypes: cloneTargetTypes(capability.TargetTypes),
			MaxDuration: capability.MaxDuration,
			Trust:       capability.Trust,
			Synopsis:    capability.Synopsis,
			Available:   ok,
			Reason:      reason,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func available(adapter Adapter) (bool, string) {
	if checker, ok := adapter.(Availability); ok {
		return checker.Available()
	}
	return true, ""
}

func normalizeKey(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}

func cloneTargetTypes(in []osint.TargetType) []osint.TargetType {
	if len(in) == 0 {
		return nil
	}
	out := make([]osint.TargetType, len(in))
	copy(out, in)
	return out
}
