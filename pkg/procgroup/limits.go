package procgroup

import (
	"fmt"

	"github.com/core-tools/hsu-procgroup/pkg/errors"
)

// CPUControlMode represents the mutually-exclusive choice of CPU governance
type CPUControlMode int

const (
	CPUControlNone    CPUControlMode = iota // CPU consumption unrestricted
	CPUControlHardCap                       // hard percentage cap
	CPUControlMinMax                        // guaranteed min / allowed max range
)

func (m CPUControlMode) String() string {
	switch m {
	case CPUControlHardCap:
		return "hard-cap"
	case CPUControlMinMax:
		return "min-max"
	default:
		return "none"
	}
}

// MaxCPURate is the upper bound for CPU rates, expressed in percent x100
// (10000 == 100%)
const MaxCPURate = 10000

// CPUControl is a tagged union: Rate is meaningful for CPUControlHardCap,
// MinRate/MaxRate for CPUControlMinMax. At most one case is active.
type CPUControl struct {
	Mode    CPUControlMode
	Rate    uint16 // percent x100
	MinRate uint16 // percent x100
	MaxRate uint16 // percent x100
}

// ResourceLimits describes desired limits for a process group, independent
// of the native wire format. Built via the fluent setters; zero passed to a
// setter clears that field rather than setting a boundary value of zero.
// Invalid setter arguments are recorded and surfaced by Validate, so a
// specification never reaches a native call half-checked.
type ResourceLimits struct {
	killOnClose        bool
	workingSetMin      uint64
	workingSetMax      uint64
	hasWorkingSet      bool
	processMemoryLimit uint64 // bytes, per-process commit cap; 0 means unset
	maxActiveProcesses uint32 // 0 means unset
	cpu                CPUControl

	err error // first validation failure
}

// NewResourceLimits creates an empty specification (no limits set)
func NewResourceLimits() *ResourceLimits {
	return &ResourceLimits{}
}

func (l *ResourceLimits) setErr(err error) {
	if l.err == nil {
		l.err = err
	}
}

// SetCPUHardCap caps CPU consumption of the whole group at rateX100
// (percent x100, at most MaxCPURate). Zero clears CPU control entirely.
// Discards any previously set CPU range.
func (l *ResourceLimits) SetCPUHardCap(rateX100 uint16) *ResourceLimits {
	if rateX100 > MaxCPURate {
		l.setErr(errors.NewValidationError(
			fmt.Sprintf("CPU hard cap %d exceeds maximum rate %d", rateX100, MaxCPURate), nil))
		return l
	}
	if rateX100 == 0 {
		l.cpu = CPUControl{}
		return l
	}
	l.cpu = CPUControl{Mode: CPUControlHardCap, Rate: rateX100}
	return l
}

// SetCPURange sets a guaranteed minimum and allowed maximum CPU rate
// (percent x100, at most MaxCPURate each, min <= max). A zero maximum
// clears CPU control entirely, matching SetCPUHardCap's unset convention.
// Discards any previously set hard cap.
func (l *ResourceLimits) SetCPURange(minX100, maxX100 uint16) *ResourceLimits {
	if maxX100 == 0 {
		l.cpu = CPUControl{}
		return l
	}
	if minX100 > MaxCPURate || maxX100 > MaxCPURate {
		l.setErr(errors.NewValidationError(
			fmt.Sprintf("CPU range %d..%d exceeds maximum rate %d", minX100, maxX100, MaxCPURate), nil))
		return l
	}
	if minX100 > maxX100 {
		l.setErr(errors.NewValidationError(
			fmt.Sprintf("CPU range minimum %d is greater than maximum %d", minX100, maxX100), nil))
		return l
	}
	l.cpu = CPUControl{Mode: CPUControlMinMax, MinRate: minX100, MaxRate: maxX100}
	return l
}

// SetProcessMemoryLimit caps the committed virtual memory of each member
// process, in bytes. Zero clears the limit.
func (l *ResourceLimits) SetProcessMemoryLimit(bytes uint64) *ResourceLimits {
	l.processMemoryLimit = bytes
	return l
}

// SetWorkingSet bounds the resident working set of each member process,
// in bytes. Both zero clears the limit; there is no independent min-only
// or max-only state.
func (l *ResourceLimits) SetWorkingSet(min, max uint64) *ResourceLimits {
	if min == 0 && max == 0 {
		l.workingSetMin = 0
		l.workingSetMax = 0
		l.hasWorkingSet = false
		return l
	}
	if min == 0 || max == 0 {
		l.setErr(errors.NewValidationError(
			"working set minimum and maximum must both be non-zero to set a limit", nil))
		return l
	}
	if min > max {
		l.setErr(errors.NewValidationError(
			fmt.Sprintf("working set minimum %d is greater than maximum %d", min, max), nil))
		return l
	}
	l.workingSetMin = min
	l.workingSetMax = max
	l.hasWorkingSet = true
	return l
}

// SetMaxActiveProcesses limits the number of simultaneously active member
// processes. Zero clears the limit.
func (l *ResourceLimits) SetMaxActiveProcesses(n uint32) *ResourceLimits {
	l.maxActiveProcesses = n
	return l
}

// SetKillOnClose requests that all member processes are terminated when the
// last handle to the group is closed
func (l *ResourceLimits) SetKillOnClose(kill bool) *ResourceLimits {
	l.killOnClose = kill
	return l
}

// Validate reports the first invalid setter argument, if any. A validation
// failure indicates a programming error at the call site and is never
// retried.
func (l *ResourceLimits) Validate() error {
	return l.err
}

// CPU returns the CPU control setting
func (l *ResourceLimits) CPU() CPUControl {
	return l.cpu
}

// WorkingSet returns the working set bounds; ok is false when unset
func (l *ResourceLimits) WorkingSet() (min, max uint64, ok bool) {
	return l.workingSetMin, l.workingSetMax, l.hasWorkingSet
}

// ProcessMemoryLimit returns the per-process commit cap; ok is false when unset
func (l *ResourceLimits) ProcessMemoryLimit() (bytes uint64, ok bool) {
	return l.processMemoryLimit, l.processMemoryLimit != 0
}

// MaxActiveProcesses returns the active-process limit; ok is false when unset
func (l *ResourceLimits) MaxActiveProcesses() (n uint32, ok bool) {
	return l.maxActiveProcesses, l.maxActiveProcesses != 0
}

// KillOnClose returns whether members die with the last group handle
func (l *ResourceLimits) KillOnClose() bool {
	return l.killOnClose
}

// IsZero reports whether no limit is set at all
func (l *ResourceLimits) IsZero() bool {
	return !l.killOnClose &&
		!l.hasWorkingSet &&
		l.processMemoryLimit == 0 &&
		l.maxActiveProcesses == 0 &&
		l.cpu.Mode == CPUControlNone
}
