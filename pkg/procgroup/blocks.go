package procgroup

import (
	"encoding/binary"
	"fmt"

	"github.com/core-tools/hsu-procgroup/pkg/errors"
)

// Presence flags of the extended limits block. A set bit means the
// corresponding field is meaningful; a flags value of zero means the block
// carries no settings and is never sent to a set call.
const (
	limitFlagWorkingSet    uint32 = 0x00000001
	limitFlagActiveProcess uint32 = 0x00000008
	limitFlagProcessMemory uint32 = 0x00000100
	limitFlagKillOnClose   uint32 = 0x00002000
)

// Control flags of the CPU rate block. The flags select which union member
// occupies the second dword; only hard-cap and min-max are modeled.
const (
	cpuRateFlagEnable      uint32 = 0x00000001
	cpuRateFlagWeightBased uint32 = 0x00000002
	cpuRateFlagHardCap     uint32 = 0x00000004
	cpuRateFlagMinMaxRate  uint32 = 0x00000010
)

// Wire sizes of the native blocks, 64-bit layout
const (
	extendedLimitsBlockSize = 144
	cpuRateControlBlockSize = 8
)

// ioCounters mirrors the I/O accounting section of the extended limits
// block. Read-only on query, ignored on set.
type ioCounters struct {
	ReadOperationCount  uint64
	WriteOperationCount uint64
	OtherOperationCount uint64
	ReadTransferCount   uint64
	WriteTransferCount  uint64
	OtherTransferCount  uint64
}

// extendedLimitsBlock models the native basic+extended limits block.
// Fields not covered by the logical specification (time limits, affinity,
// priority/scheduling class, peaks) are carried through untouched so a
// query round-trips losslessly.
type extendedLimitsBlock struct {
	PerProcessUserTimeLimit int64
	PerJobUserTimeLimit     int64
	LimitFlags              uint32
	MinimumWorkingSetSize   uint64
	MaximumWorkingSetSize   uint64
	ActiveProcessLimit      uint32
	Affinity                uint64
	PriorityClass           uint32
	SchedulingClass         uint32
	IO                      ioCounters
	ProcessMemoryLimit      uint64
	JobMemoryLimit          uint64
	PeakProcessMemoryUsed   uint64
	PeakJobMemoryUsed       uint64
}

// cpuRateControlBlock models the native CPU rate control block as an
// explicit tagged variant instead of an overlapping byte range. Which of
// Rate or MinRate/MaxRate is meaningful follows from ControlFlags.
type cpuRateControlBlock struct {
	ControlFlags uint32
	Rate         uint32 // flat rate or weight, per ControlFlags
	MinRate      uint16
	MaxRate      uint16
}

// encode serializes the block into its native 64-bit wire layout,
// padding included
func (b *extendedLimitsBlock) encode() []byte {
	data := make([]byte, extendedLimitsBlockSize)
	binary.LittleEndian.PutUint64(data[0:], uint64(b.PerProcessUserTimeLimit))
	binary.LittleEndian.PutUint64(data[8:], uint64(b.PerJobUserTimeLimit))
	binary.LittleEndian.PutUint32(data[16:], b.LimitFlags)
	// 4 bytes padding at offset 20
	binary.LittleEndian.PutUint64(data[24:], b.MinimumWorkingSetSize)
	binary.LittleEndian.PutUint64(data[32:], b.MaximumWorkingSetSize)
	binary.LittleEndian.PutUint32(data[40:], b.ActiveProcessLimit)
	// 4 bytes padding at offset 44
	binary.LittleEndian.PutUint64(data[48:], b.Affinity)
	binary.LittleEndian.PutUint32(data[56:], b.PriorityClass)
	binary.LittleEndian.PutUint32(data[60:], b.SchedulingClass)
	binary.LittleEndian.PutUint64(data[64:], b.IO.ReadOperationCount)
	binary.LittleEndian.PutUint64(data[72:], b.IO.WriteOperationCount)
	binary.LittleEndian.PutUint64(data[80:], b.IO.OtherOperationCount)
	binary.LittleEndian.PutUint64(data[88:], b.IO.ReadTransferCount)
	binary.LittleEndian.PutUint64(data[96:], b.IO.WriteTransferCount)
	binary.LittleEndian.PutUint64(data[104:], b.IO.OtherTransferCount)
	binary.LittleEndian.PutUint64(data[112:], b.ProcessMemoryLimit)
	binary.LittleEndian.PutUint64(data[120:], b.JobMemoryLimit)
	binary.LittleEndian.PutUint64(data[128:], b.PeakProcessMemoryUsed)
	binary.LittleEndian.PutUint64(data[136:], b.PeakJobMemoryUsed)
	return data
}

func decodeExtendedLimitsBlock(data []byte) (*extendedLimitsBlock, error) {
	if len(data) < extendedLimitsBlockSize {
		return nil, errors.NewInternalError(
			fmt.Sprintf("extended limits block too short: %d bytes, expected %d", len(data), extendedLimitsBlockSize), nil)
	}
	return &extendedLimitsBlock{
		PerProcessUserTimeLimit: int64(binary.LittleEndian.Uint64(data[0:])),
		PerJobUserTimeLimit:     int64(binary.LittleEndian.Uint64(data[8:])),
		LimitFlags:              binary.LittleEndian.Uint32(data[16:]),
		MinimumWorkingSetSize:   binary.LittleEndian.Uint64(data[24:]),
		MaximumWorkingSetSize:   binary.LittleEndian.Uint64(data[32:]),
		ActiveProcessLimit:      binary.LittleEndian.Uint32(data[40:]),
		Affinity:                binary.LittleEndian.Uint64(data[48:]),
		PriorityClass:           binary.LittleEndian.Uint32(data[56:]),
		SchedulingClass:         binary.LittleEndian.Uint32(data[60:]),
		IO: ioCounters{
			ReadOperationCount:  binary.LittleEndian.Uint64(data[64:]),
			WriteOperationCount: binary.LittleEndian.Uint64(data[72:]),
			OtherOperationCount: binary.LittleEndian.Uint64(data[80:]),
			ReadTransferCount:   binary.LittleEndian.Uint64(data[88:]),
			WriteTransferCount:  binary.LittleEndian.Uint64(data[96:]),
			OtherTransferCount:  binary.LittleEndian.Uint64(data[104:]),
		},
		ProcessMemoryLimit:    binary.LittleEndian.Uint64(data[112:]),
		JobMemoryLimit:        binary.LittleEndian.Uint64(data[120:]),
		PeakProcessMemoryUsed: binary.LittleEndian.Uint64(data[128:]),
		PeakJobMemoryUsed:     binary.LittleEndian.Uint64(data[136:]),
	}, nil
}

// encode serializes the block, placing the active union member into the
// second dword
func (b *cpuRateControlBlock) encode() []byte {
	data := make([]byte, cpuRateControlBlockSize)
	binary.LittleEndian.PutUint32(data[0:], b.ControlFlags)
	if b.ControlFlags&cpuRateFlagMinMaxRate != 0 {
		binary.LittleEndian.PutUint16(data[4:], b.MinRate)
		binary.LittleEndian.PutUint16(data[6:], b.MaxRate)
	} else {
		binary.LittleEndian.PutUint32(data[4:], b.Rate)
	}
	return data
}

func decodeCPURateControlBlock(data []byte) (*cpuRateControlBlock, error) {
	if len(data) < cpuRateControlBlockSize {
		return nil, errors.NewInternalError(
			fmt.Sprintf("CPU rate control block too short: %d bytes, expected %d", len(data), cpuRateControlBlockSize), nil)
	}
	b := &cpuRateControlBlock{
		ControlFlags: binary.LittleEndian.Uint32(data[0:]),
	}
	if b.ControlFlags&cpuRateFlagMinMaxRate != 0 {
		b.MinRate = binary.LittleEndian.Uint16(data[4:])
		b.MaxRate = binary.LittleEndian.Uint16(data[6:])
	} else {
		b.Rate = binary.LittleEndian.Uint32(data[4:])
	}
	return b, nil
}

// extendedBlock serializes the specification into the extended limits
// block. Returns nil when no flag would be set; an all-zero block must not
// reach the set call.
func (l *ResourceLimits) extendedBlock() *extendedLimitsBlock {
	var block extendedLimitsBlock
	if l.hasWorkingSet {
		block.LimitFlags |= limitFlagWorkingSet
		block.MinimumWorkingSetSize = l.workingSetMin
		block.MaximumWorkingSetSize = l.workingSetMax
	}
	if l.maxActiveProcesses != 0 {
		block.LimitFlags |= limitFlagActiveProcess
		block.ActiveProcessLimit = l.maxActiveProcesses
	}
	if l.processMemoryLimit != 0 {
		block.LimitFlags |= limitFlagProcessMemory
		block.ProcessMemoryLimit = l.processMemoryLimit
	}
	if l.killOnClose {
		block.LimitFlags |= limitFlagKillOnClose
	}
	if block.LimitFlags == 0 {
		return nil
	}
	return &block
}

// cpuRateBlock serializes the CPU control setting. Returns nil when CPU
// control is unset.
func (l *ResourceLimits) cpuRateBlock() *cpuRateControlBlock {
	switch l.cpu.Mode {
	case CPUControlHardCap:
		return &cpuRateControlBlock{
			ControlFlags: cpuRateFlagEnable | cpuRateFlagHardCap,
			Rate:         uint32(l.cpu.Rate),
		}
	case CPUControlMinMax:
		return &cpuRateControlBlock{
			ControlFlags: cpuRateFlagEnable | cpuRateFlagMinMaxRate,
			MinRate:      l.cpu.MinRate,
			MaxRate:      l.cpu.MaxRate,
		}
	default:
		return nil
	}
}

// decodeLimits is the exact inverse of serialization: presence of every
// logical field is re-derived from the flags alone, so absent flags come
// back as unset fields rather than boundary values. Either block may be
// nil.
func decodeLimits(ext *extendedLimitsBlock, cpu *cpuRateControlBlock) *ResourceLimits {
	limits := NewResourceLimits()
	if ext != nil {
		if ext.LimitFlags&limitFlagWorkingSet != 0 {
			limits.workingSetMin = ext.MinimumWorkingSetSize
			limits.workingSetMax = ext.MaximumWorkingSetSize
			limits.hasWorkingSet = true
		}
		if ext.LimitFlags&limitFlagActiveProcess != 0 {
			limits.maxActiveProcesses = ext.ActiveProcessLimit
		}
		if ext.LimitFlags&limitFlagProcessMemory != 0 {
			limits.processMemoryLimit = ext.ProcessMemoryLimit
		}
		if ext.LimitFlags&limitFlagKillOnClose != 0 {
			limits.killOnClose = true
		}
	}
	if cpu != nil && cpu.ControlFlags&cpuRateFlagEnable != 0 {
		switch {
		case cpu.ControlFlags&cpuRateFlagMinMaxRate != 0:
			limits.cpu = CPUControl{Mode: CPUControlMinMax, MinRate: cpu.MinRate, MaxRate: cpu.MaxRate}
		case cpu.ControlFlags&cpuRateFlagHardCap != 0:
			limits.cpu = CPUControl{Mode: CPUControlHardCap, Rate: uint16(cpu.Rate)}
		}
		// weight-based control is not modeled and decodes as unset
	}
	return limits
}
