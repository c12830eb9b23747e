package procgroup

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/core-tools/hsu-procgroup/pkg/errors"
	"github.com/core-tools/hsu-procgroup/pkg/logging"
)

// GroupHandle owns exactly one native group handle and guarantees it is
// released exactly once. The live->disposed transition is one-way: once
// disposed, Value fails and further Close calls are no-ops. A finalizer
// covers the path where the owner is abandoned without an explicit Close.
type GroupHandle struct {
	value  groupHandleValue
	name   string
	api    nativeGroupAPI
	logger logging.Logger

	disposed atomic.Bool
	mutex    sync.Mutex
}

// newGroupHandle wraps a native handle value. Zero and all-bits-set are
// never valid handle values and are rejected immediately.
func newGroupHandle(value groupHandleValue, name string, api nativeGroupAPI, logger logging.Logger) (*GroupHandle, error) {
	if value == 0 || value == ^groupHandleValue(0) {
		return nil, errors.NewValidationError("invalid native group handle value", nil).WithContext("name", name)
	}
	h := &GroupHandle{
		value:  value,
		name:   name,
		api:    api,
		logger: logger,
	}
	runtime.SetFinalizer(h, func(h *GroupHandle) {
		h.Close()
	})
	return h, nil
}

// Value returns the native handle value, failing once the handle is disposed
func (h *GroupHandle) Value() (groupHandleValue, error) {
	if h.disposed.Load() {
		return 0, errors.NewInvalidStateError("group handle is disposed", nil).WithContext("name", h.name)
	}
	return h.value, nil
}

// Disposed reports whether the handle has been released
func (h *GroupHandle) Disposed() bool {
	return h.disposed.Load()
}

// Close releases the native handle. Idempotent: the first call releases
// the kernel object and marks the handle invalid, subsequent calls are
// no-ops. The handle is marked invalid before the native release so a
// failed release still never yields a handle usable twice; the failure is
// reported via the logger only, disposal always completes.
func (h *GroupHandle) Close() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.disposed.Load() {
		return nil
	}
	h.disposed.Store(true)
	runtime.SetFinalizer(h, nil)

	if err := h.api.CloseGroupHandle(h.value); err != nil {
		// Leaking the kernel object is preferable to a double release
		h.logger.Errorf("Failed to close group handle, name: %q, error: %v", h.name, err)
	}
	return nil
}
