package procgroup

// groupHandleValue is the opaque native handle value for a process group
type groupHandleValue uintptr

// BlockType selects which native limit block a set/query call addresses
type BlockType int

const (
	BlockTypeExtendedLimits BlockType = iota
	BlockTypeCPURateControl
)

func (b BlockType) String() string {
	switch b {
	case BlockTypeExtendedLimits:
		return "extended-limits"
	case BlockTypeCPURateControl:
		return "cpu-rate-control"
	default:
		return "unknown"
	}
}

// nativeGroupAPI is the narrow syscall surface for process groups.
// Limit blocks cross this boundary as opaque byte buffers; all modeling
// of their layout lives above it. No business logic here.
type nativeGroupAPI interface {
	// CreateGroup allocates a new group, optionally named. Named-group
	// identity is platform-defined: on Windows an existing name yields a
	// handle to the existing kernel object.
	CreateGroup(name string) (groupHandleValue, error)

	// SetGroupLimits applies one limit block to the group
	SetGroupLimits(handle groupHandleValue, block BlockType, data []byte) error

	// QueryGroupLimits reads one limit block of the given size from the group
	QueryGroupLimits(handle groupHandleValue, block BlockType, size int) ([]byte, error)

	// AssignProcess attaches the process with the given pid to the group.
	// Descendants of an attached process join the group implicitly.
	AssignProcess(handle groupHandleValue, pid int) error

	// TerminateGroup forcibly ends every member process with the exit code
	TerminateGroup(handle groupHandleValue, exitCode int) error

	// CloseGroupHandle releases the native handle
	CloseGroupHandle(handle groupHandleValue) error
}
