package osint

import "time"

// InvestigationStatus captures lifecycle states for an investigation.
type InvestigationStatus string

const (
	InvestigationPending   InvestigationStatus = "pending"
	InvestigationRunning   InvestigationStatus = "running"
	InvestigationCompleted InvestigationStatus = "completed"
	InvestigationFailed    InvestigationStatus = "failed"
	InvestigationCancelled InvestigationStatus = "cancelled"
)

// IsTerminal reports whether the status can no longer change.
func (s InvestigationStatus) IsTerminal() bool {
	switch s {
	case InvestigationCompleted, InvestigationFailed, InvestigationCancelled:
		return true
	}
	return false
}

// Investigation is one operator request against a single target.
type Investigation struct {
	ID               string              `json:"id"`
	Target           Target              `json:"target"`
	Scope            []Category          `json:"scope,omitempty"`
	Status           InvestigationStatus `json:"status"`
	CreatedAt        time.Time           `json:"createdAt"`
	Deadline         time.Time           `json:"deadline"`
	StartedAt        time.Time           `json:"startedAt,omitempty"`
	CompletedAt      time.Time           `json:"completedAt,omitempty"`
	DeadlineExceeded bool                `json:"deadlineExceeded,omitempty"`
	Error            string              `json:"error,omitempty"`
	RequestedBy      string              `json:"requestedBy,omitempty"`
	Notes            string              `json:"notes,omitempty"`
}

// Clone returns a copy that shares no slices with the receiver.
func (i Investigation) Clone() Investigation {
	if i.Scope != nil {
		scope := make([]Category, len(i.Scope))
		copy(scope, i.Scope)
		i.Scope = scope
	}
	return i
}
