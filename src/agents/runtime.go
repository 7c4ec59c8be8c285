package agents

import (
	"github.com/stake-plus/osintops/src/agents/core"
)

// Registry re-exports the core registry returned by StartAll.
type Registry = core.Registry
