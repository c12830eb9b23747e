package procgroup

import "os"

// Group tracks a process and its descendants as one unit for resource
// accounting and control. All operations are synchronous native calls;
// there is no cancellation and no retry at this level. Individual calls
// are safe for concurrent use, disposal is exclusive and idempotent, and
// every operation after disposal fails with an invalid-state error.
type Group interface {
	// ID returns the group's log identity (generated for anonymous groups)
	ID() string

	// Name returns the optional kernel object name, empty for anonymous groups
	Name() string

	// ApplyLimits validates the specification and issues one native set call
	// per non-empty limit block. A failure on the second block does not roll
	// back the first; partial application is a defined, observable outcome.
	ApplyLimits(limits *ResourceLimits) error

	// CurrentLimits queries both limit blocks and deserializes them back
	// into one specification
	CurrentLimits() (*ResourceLimits, error)

	// AddProcess attaches an already-obtained process reference to the group
	AddProcess(process *os.Process) error

	// AddPID attaches a process by id, resolving it to a reference first
	AddPID(pid int) error

	// TerminateAll forcibly ends every member process with the given exit
	// code. Best-effort: members that already exited do not cause a failure.
	TerminateAll(exitCode int) error

	// Close releases the underlying group handle; idempotent
	Close() error
}
