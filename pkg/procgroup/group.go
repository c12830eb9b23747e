package procgroup

import (
	"fmt"
	"os"

	"github.com/core-tools/hsu-procgroup/pkg/errors"
	"github.com/core-tools/hsu-procgroup/pkg/logging"
	"github.com/core-tools/hsu-procgroup/pkg/processstate"

	"github.com/gofrs/uuid"
)

// ProcessGroup is the façade over one group handle
type ProcessGroup struct {
	id     string
	name   string
	handle *GroupHandle
	api    nativeGroupAPI
	logger logging.Logger
}

var _ Group = (*ProcessGroup)(nil)

// NewProcessGroup allocates a new process group. An empty name creates an
// anonymous group; a non-empty name is passed through to the platform,
// whose semantics decide whether it refers to an existing shared object.
// The group starts with no limits applied.
func NewProcessGroup(name string, logger logging.Logger) (*ProcessGroup, error) {
	api, err := newPlatformGroupAPI()
	if err != nil {
		return nil, err
	}
	return newProcessGroupWithAPI(name, api, logger)
}

func newProcessGroupWithAPI(name string, api nativeGroupAPI, logger logging.Logger) (*ProcessGroup, error) {
	groupUUID, err := uuid.NewV4()
	if err != nil {
		return nil, errors.NewInternalError("failed to generate group id", err)
	}
	id := groupUUID.String()

	groupLogger := logging.NewLogger(fmt.Sprintf("group: %s , ", id), logging.LogFuncs{
		LogLevelf: logger.LogLevelf,
	})

	value, err := api.CreateGroup(name)
	if err != nil {
		groupLogger.Errorf("Failed to create process group, name: %q, error: %v", name, err)
		return nil, errors.NewResourceError("failed to create process group", err).WithContext("name", name)
	}

	handle, err := newGroupHandle(value, name, api, groupLogger)
	if err != nil {
		api.CloseGroupHandle(value)
		return nil, err
	}

	groupLogger.Infof("Created process group, name: %q", name)

	return &ProcessGroup{
		id:     id,
		name:   name,
		handle: handle,
		api:    api,
		logger: groupLogger,
	}, nil
}

// ID returns the group's log identity
func (g *ProcessGroup) ID() string {
	return g.id
}

// Name returns the kernel object name, empty for anonymous groups
func (g *ProcessGroup) Name() string {
	return g.name
}

// nativeError classifies a failed native call: a failure observed on a
// disposed handle is a lifecycle violation, not a resource problem
func (g *ProcessGroup) nativeError(message string, cause error) *errors.DomainError {
	if g.handle.Disposed() {
		return errors.NewInvalidStateError(message+" on disposed group", cause)
	}
	return errors.NewResourceError(message, cause)
}

// ApplyLimits serializes the specification and issues one set call per
// non-empty native block. Validation failures surface before any native
// call. A failure on the second block leaves the first applied.
func (g *ProcessGroup) ApplyLimits(limits *ResourceLimits) error {
	if limits == nil {
		return errors.NewValidationError("resource limits cannot be nil", nil)
	}
	if err := limits.Validate(); err != nil {
		g.logger.Errorf("Resource limits validation failed: %v", err)
		return err
	}

	value, err := g.handle.Value()
	if err != nil {
		return err
	}

	ext := limits.extendedBlock()
	if ext != nil {
		g.logger.Debugf("Setting extended limits, flags: 0x%x", ext.LimitFlags)
		if err := g.api.SetGroupLimits(value, BlockTypeExtendedLimits, ext.encode()); err != nil {
			g.logger.Errorf("Failed to set extended limits: %v", err)
			return g.nativeError("failed to set extended limits", err)
		}
	}

	cpu := limits.cpuRateBlock()
	if cpu != nil {
		g.logger.Debugf("Setting CPU rate control, flags: 0x%x", cpu.ControlFlags)
		if err := g.api.SetGroupLimits(value, BlockTypeCPURateControl, cpu.encode()); err != nil {
			// The extended block, if any, stays applied
			g.logger.Errorf("Failed to set CPU rate control, extended limits remain applied: %v", err)
			return g.nativeError("failed to set CPU rate control", err)
		}
	}

	if ext == nil && cpu == nil {
		g.logger.Debugf("Resource limits specification is empty, nothing to apply")
		return nil
	}

	g.logger.Infof("Applied resource limits")
	return nil
}

// CurrentLimits queries both native blocks and deserializes them into one
// specification. The platform returns fully populated blocks; presence of
// each logical field is re-derived from the flags alone.
func (g *ProcessGroup) CurrentLimits() (*ResourceLimits, error) {
	value, err := g.handle.Value()
	if err != nil {
		return nil, err
	}

	extData, err := g.api.QueryGroupLimits(value, BlockTypeExtendedLimits, extendedLimitsBlockSize)
	if err != nil {
		g.logger.Errorf("Failed to query extended limits: %v", err)
		return nil, g.nativeError("failed to query extended limits", err)
	}
	ext, err := decodeExtendedLimitsBlock(extData)
	if err != nil {
		return nil, err
	}

	cpuData, err := g.api.QueryGroupLimits(value, BlockTypeCPURateControl, cpuRateControlBlockSize)
	if err != nil {
		g.logger.Errorf("Failed to query CPU rate control: %v", err)
		return nil, g.nativeError("failed to query CPU rate control", err)
	}
	cpu, err := decodeCPURateControlBlock(cpuData)
	if err != nil {
		return nil, err
	}

	return decodeLimits(ext, cpu), nil
}

// AddProcess attaches an already-obtained process reference to the group
func (g *ProcessGroup) AddProcess(process *os.Process) error {
	if process == nil {
		return errors.NewValidationError("process cannot be nil", nil)
	}
	return g.AddPID(process.Pid)
}

// AddPID attaches a process by id. Further descendants of an attached
// process become members implicitly, courtesy of the platform primitive.
func (g *ProcessGroup) AddPID(pid int) error {
	if pid <= 0 {
		return errors.NewValidationError(fmt.Sprintf("invalid PID: %d", pid), nil)
	}

	value, err := g.handle.Value()
	if err != nil {
		return err
	}

	// Best-effort pre-flight check; the native call remains the authority
	if running, checkErr := processstate.IsProcessRunning(pid); checkErr == nil && !running {
		g.logger.Warnf("Process is not running, attach will likely fail, PID: %d", pid)
	}

	if err := g.api.AssignProcess(value, pid); err != nil {
		g.logger.Errorf("Failed to attach process, PID: %d, error: %v", pid, err)
		return g.nativeError("failed to attach process to group", err).WithContext("pid", pid)
	}

	g.logger.Infof("Attached process to group, PID: %d", pid)
	return nil
}

// TerminateAll forcibly ends every member process with the given exit
// code. May race with natural process exit; members that already exited do
// not cause a failure.
func (g *ProcessGroup) TerminateAll(exitCode int) error {
	value, err := g.handle.Value()
	if err != nil {
		return err
	}

	if err := g.api.TerminateGroup(value, exitCode); err != nil {
		g.logger.Errorf("Failed to terminate group, exit code: %d, error: %v", exitCode, err)
		return g.nativeError("failed to terminate group", err).WithContext("exit_code", exitCode)
	}

	g.logger.Infof("Terminated all group members, exit code: %d", exitCode)
	return nil
}

// Close releases the underlying group handle. Idempotent; after the first
// call every other operation fails with an invalid-state error.
func (g *ProcessGroup) Close() error {
	return g.handle.Close()
}
