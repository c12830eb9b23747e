package procgroup

import (
	"fmt"
	"sync"
)

// testLogger for testing
type testLogger struct{}

func (l *testLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (l *testLogger) Debugf(msg string, args ...interface{})                  {}
func (l *testLogger) Infof(msg string, args ...interface{})                   {}
func (l *testLogger) Warnf(msg string, args ...interface{})                   {}
func (l *testLogger) Errorf(msg string, args ...interface{})                  {}

// recorded set call
type setCall struct {
	block BlockType
	data  []byte
}

type fakeGroup struct {
	name       string
	blocks     map[BlockType][]byte
	members    []int
	terminated map[int]int // pid -> exit code
}

// fakeNativeAPI emulates the kernel side of the native surface: blocks are
// stored per group and queries return them fully populated, assignment
// honors an applied active-process limit, and closing a group whose
// extended block carries the kill-on-close flag terminates its members.
type fakeNativeAPI struct {
	mu sync.Mutex

	nextHandle groupHandleValue
	groups     map[groupHandleValue]*fakeGroup
	byName     map[string]groupHandleValue

	setCalls []setCall
	closed   []groupHandleValue

	failCreate error
	failSet    map[BlockType]error
	failQuery  map[BlockType]error
	failAssign error
	failClose  error
}

func newFakeNativeAPI() *fakeNativeAPI {
	return &fakeNativeAPI{
		nextHandle: 0x1000,
		groups:     make(map[groupHandleValue]*fakeGroup),
		byName:     make(map[string]groupHandleValue),
		failSet:    make(map[BlockType]error),
		failQuery:  make(map[BlockType]error),
	}
}

func (f *fakeNativeAPI) CreateGroup(name string) (groupHandleValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreate != nil {
		return 0, f.failCreate
	}
	// Named groups refer to the existing kernel object
	if name != "" {
		if handle, exists := f.byName[name]; exists {
			return handle, nil
		}
	}
	handle := f.nextHandle
	f.nextHandle += 4
	f.groups[handle] = &fakeGroup{
		name:       name,
		blocks:     make(map[BlockType][]byte),
		terminated: make(map[int]int),
	}
	if name != "" {
		f.byName[name] = handle
	}
	return handle, nil
}

func (f *fakeNativeAPI) group(handle groupHandleValue) (*fakeGroup, error) {
	g, exists := f.groups[handle]
	if !exists {
		return nil, fmt.Errorf("invalid group handle: 0x%x", uintptr(handle))
	}
	return g, nil
}

func (f *fakeNativeAPI) SetGroupLimits(handle groupHandleValue, block BlockType, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	g, err := f.group(handle)
	if err != nil {
		return err
	}
	if err := f.failSet[block]; err != nil {
		return err
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	g.blocks[block] = stored
	f.setCalls = append(f.setCalls, setCall{block: block, data: stored})
	return nil
}

func (f *fakeNativeAPI) QueryGroupLimits(handle groupHandleValue, block BlockType, size int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	g, err := f.group(handle)
	if err != nil {
		return nil, err
	}
	if err := f.failQuery[block]; err != nil {
		return nil, err
	}
	// Queries always come back fully populated; an unconfigured block
	// reads as all zeroes, flags included
	buf := make([]byte, size)
	if stored, exists := g.blocks[block]; exists {
		copy(buf, stored)
	}
	return buf, nil
}

func (f *fakeNativeAPI) AssignProcess(handle groupHandleValue, pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	g, err := f.group(handle)
	if err != nil {
		return err
	}
	if f.failAssign != nil {
		return f.failAssign
	}
	if limit, ok := f.activeProcessLimit(g); ok && uint32(len(g.members)) >= limit {
		return fmt.Errorf("active process limit reached: %d", limit)
	}
	g.members = append(g.members, pid)
	return nil
}

func (f *fakeNativeAPI) TerminateGroup(handle groupHandleValue, exitCode int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	g, err := f.group(handle)
	if err != nil {
		return err
	}
	// Best-effort: already-exited members are not an error
	for _, pid := range g.members {
		g.terminated[pid] = exitCode
	}
	return nil
}

func (f *fakeNativeAPI) CloseGroupHandle(handle groupHandleValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = append(f.closed, handle)
	if f.failClose != nil {
		return f.failClose
	}
	// Group state is kept for post-close inspection; only the name slot is
	// released, as the kernel does when the last handle goes away
	if g, exists := f.groups[handle]; exists {
		if f.killOnClose(g) {
			for _, pid := range g.members {
				g.terminated[pid] = 1
			}
		}
		if g.name != "" {
			delete(f.byName, g.name)
		}
	}
	return nil
}

func (f *fakeNativeAPI) activeProcessLimit(g *fakeGroup) (uint32, bool) {
	data, exists := g.blocks[BlockTypeExtendedLimits]
	if !exists {
		return 0, false
	}
	block, err := decodeExtendedLimitsBlock(data)
	if err != nil || block.LimitFlags&limitFlagActiveProcess == 0 {
		return 0, false
	}
	return block.ActiveProcessLimit, true
}

func (f *fakeNativeAPI) killOnClose(g *fakeGroup) bool {
	data, exists := g.blocks[BlockTypeExtendedLimits]
	if !exists {
		return false
	}
	block, err := decodeExtendedLimitsBlock(data)
	return err == nil && block.LimitFlags&limitFlagKillOnClose != 0
}

// test accessors

func (f *fakeNativeAPI) recordedSetCalls() []setCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := make([]setCall, len(f.setCalls))
	copy(calls, f.setCalls)
	return calls
}

func (f *fakeNativeAPI) closedHandles() []groupHandleValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	handles := make([]groupHandleValue, len(f.closed))
	copy(handles, f.closed)
	return handles
}

func (f *fakeNativeAPI) terminatedExitCode(handle groupHandleValue, pid int) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, exists := f.groups[handle]
	if !exists {
		return 0, false
	}
	code, terminated := g.terminated[pid]
	return code, terminated
}
