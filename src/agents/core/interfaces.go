package core

import (
	"context"

	"github.com/stake-plus/osintops/src/shared/osint"
)

// Adapter wraps one collection technique. Implementations must be idempotent:
// calling Collect again for the same target may re-query the external source
// but must not cause other side effects.
type Adapter interface {
	Name() string
	Collect(ctx context.Context, target osint.Target, opts Options) ([]osint.RawFinding, error)
}

// Lifecycle allows adapters with external resources to be started/stopped.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// Availability is implemented by adapters that depend on something that may be
// missing at runtime (a binary, an API key).
type Availability interface {
	Available() (bool, string)
}
