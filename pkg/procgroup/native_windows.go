//go:build windows
// +build windows

package procgroup

import (
	"fmt"
	"syscall"
	"unsafe"
)

// Job Object information classes
const (
	jobObjectExtendedLimitInformation  = 9
	jobObjectCpuRateControlInformation = 15
)

// Process access rights needed to place a process into a job
const (
	PROCESS_SET_QUOTA = 0x0100
)

// windowsGroupAPI implements the native surface with Windows Job Objects
type windowsGroupAPI struct {
	kernel32 *syscall.LazyDLL

	createJobObject           *syscall.LazyProc
	setInformationJobObject   *syscall.LazyProc
	queryInformationJobObject *syscall.LazyProc
	assignProcessToJob        *syscall.LazyProc
	terminateJobObject        *syscall.LazyProc
}

func newPlatformGroupAPI() (nativeGroupAPI, error) {
	kernel32 := syscall.NewLazyDLL("kernel32.dll")

	return &windowsGroupAPI{
		kernel32:                  kernel32,
		createJobObject:           kernel32.NewProc("CreateJobObjectW"),
		setInformationJobObject:   kernel32.NewProc("SetInformationJobObject"),
		queryInformationJobObject: kernel32.NewProc("QueryInformationJobObject"),
		assignProcessToJob:        kernel32.NewProc("AssignProcessToJobObject"),
		terminateJobObject:        kernel32.NewProc("TerminateJobObject"),
	}, nil
}

func informationClass(block BlockType) (uintptr, error) {
	switch block {
	case BlockTypeExtendedLimits:
		return jobObjectExtendedLimitInformation, nil
	case BlockTypeCPURateControl:
		return jobObjectCpuRateControlInformation, nil
	default:
		return 0, fmt.Errorf("unknown limit block type: %d", block)
	}
}

func (w *windowsGroupAPI) CreateGroup(name string) (groupHandleValue, error) {
	// A non-empty name that collides with an existing job yields a handle
	// to the existing object; the call still succeeds.
	var namePtr uintptr
	if name != "" {
		p, err := syscall.UTF16PtrFromString(name)
		if err != nil {
			return 0, fmt.Errorf("invalid group name: %v", err)
		}
		namePtr = uintptr(unsafe.Pointer(p))
	}

	ret, _, err := w.createJobObject.Call(
		0, // NULL security attributes
		namePtr,
	)
	if ret == 0 {
		return 0, fmt.Errorf("CreateJobObject failed: %v", err)
	}
	return groupHandleValue(ret), nil
}

func (w *windowsGroupAPI) SetGroupLimits(handle groupHandleValue, block BlockType, data []byte) error {
	class, err := informationClass(block)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("empty %s block", block)
	}

	ret, _, callErr := w.setInformationJobObject.Call(
		uintptr(handle),
		class,
		uintptr(unsafe.Pointer(&data[0])),
		uintptr(len(data)),
	)
	if ret == 0 {
		return fmt.Errorf("SetInformationJobObject failed: %w", callErr)
	}
	return nil
}

func (w *windowsGroupAPI) QueryGroupLimits(handle groupHandleValue, block BlockType, size int) ([]byte, error) {
	class, err := informationClass(block)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	var returnedLength uint32
	ret, _, callErr := w.queryInformationJobObject.Call(
		uintptr(handle),
		class,
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		uintptr(unsafe.Pointer(&returnedLength)),
	)
	if ret == 0 {
		return nil, fmt.Errorf("QueryInformationJobObject failed: %w", callErr)
	}
	return buf, nil
}

func (w *windowsGroupAPI) AssignProcess(handle groupHandleValue, pid int) error {
	procHandle, err := syscall.OpenProcess(
		PROCESS_SET_QUOTA|syscall.PROCESS_TERMINATE,
		false,
		uint32(pid),
	)
	if err != nil {
		return fmt.Errorf("failed to open process %d: %w", pid, err)
	}
	defer syscall.CloseHandle(procHandle)

	ret, _, callErr := w.assignProcessToJob.Call(
		uintptr(handle),
		uintptr(procHandle),
	)
	if ret == 0 {
		return fmt.Errorf("AssignProcessToJobObject failed: %w", callErr)
	}
	return nil
}

func (w *windowsGroupAPI) TerminateGroup(handle groupHandleValue, exitCode int) error {
	ret, _, callErr := w.terminateJobObject.Call(
		uintptr(handle),
		uintptr(uint32(exitCode)),
	)
	if ret == 0 {
		return fmt.Errorf("TerminateJobObject failed: %w", callErr)
	}
	return nil
}

func (w *windowsGroupAPI) CloseGroupHandle(handle groupHandleValue) error {
	return syscall.CloseHandle(syscall.Handle(handle))
}
