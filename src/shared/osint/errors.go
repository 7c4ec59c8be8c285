package osint

import "errors"

var (
	// ErrInvalidTarget is returned when a target fails shape validation.
	ErrInvalidTarget = errors.New("osint: invalid target")
	// ErrUnsupportedTarget means no adapter can serve the target type and scope.
	ErrUnsupportedTarget = errors.New("osint: unsupported target")
	// ErrInvestigationNotTerminal is returned when consolidation runs too early.
	ErrInvestigationNotTerminal = errors.New("osint: investigation not terminal")
	// ErrDeadlineExceeded marks an investigation forcibly completed at its deadline.
	ErrDeadlineExceeded = errors.New("osint: deadline exceeded")
	// ErrStoreUnavailable signals a persistence failure.
	ErrStoreUnavailable = errors.New("osint: store unavailable")
	// ErrNotFound is returned by repositories for unknown identifiers.
	ErrNotFound = errors.New("osint: not found")
	// ErrIllegalTransition is returned when a task state change breaks the state machine.
	ErrIllegalTransition = errors.New("osint: illegal task transition")
	// ErrDuplicateInvestigation is returned when an investigation ID is reused.
	ErrDuplicateInvestigation = errors.New("osint: duplicate investigation")
)
