package procgroup

import (
	"testing"

	"github.com/core-tools/hsu-procgroup/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceLimits_CPUHardCap(t *testing.T) {
	tests := []struct {
		name      string
		rate      uint16
		shouldErr bool
		mode      CPUControlMode
	}{
		{"max_rate", MaxCPURate, false, CPUControlHardCap},
		{"half_rate", 5000, false, CPUControlHardCap},
		{"over_max", MaxCPURate + 1, true, CPUControlNone},
		{"zero_clears", 0, false, CPUControlNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limits := NewResourceLimits().SetCPUHardCap(tt.rate)

			err := limits.Validate()
			if tt.shouldErr {
				assert.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
			} else {
				assert.NoError(t, err)
				cpu := limits.CPU()
				assert.Equal(t, tt.mode, cpu.Mode)
				if tt.mode == CPUControlHardCap {
					assert.Equal(t, tt.rate, cpu.Rate)
				}
			}
		})
	}
}

func TestResourceLimits_CPURange(t *testing.T) {
	tests := []struct {
		name      string
		min, max  uint16
		shouldErr bool
		mode      CPUControlMode
	}{
		{"valid_range", 1000, 8000, false, CPUControlMinMax},
		{"equal_bounds", 5000, 5000, false, CPUControlMinMax},
		{"min_greater_than_max", 8000, 1000, true, CPUControlNone},
		{"max_over_limit", 1000, MaxCPURate + 1, true, CPUControlNone},
		{"zero_max_clears", 1000, 0, false, CPUControlNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limits := NewResourceLimits().SetCPURange(tt.min, tt.max)

			err := limits.Validate()
			if tt.shouldErr {
				assert.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
			} else {
				assert.NoError(t, err)
				cpu := limits.CPU()
				assert.Equal(t, tt.mode, cpu.Mode)
				if tt.mode == CPUControlMinMax {
					assert.Equal(t, tt.min, cpu.MinRate)
					assert.Equal(t, tt.max, cpu.MaxRate)
				}
			}
		})
	}
}

func TestResourceLimits_CPUMutualExclusivity(t *testing.T) {
	// The later setter always wins; only one CPU mode may be active
	limits := NewResourceLimits().
		SetCPUHardCap(5000).
		SetCPURange(1000, 8000)

	require.NoError(t, limits.Validate())
	cpu := limits.CPU()
	assert.Equal(t, CPUControlMinMax, cpu.Mode)
	assert.Equal(t, uint16(0), cpu.Rate)
	assert.Equal(t, uint16(1000), cpu.MinRate)
	assert.Equal(t, uint16(8000), cpu.MaxRate)

	limits.SetCPUHardCap(2500)
	require.NoError(t, limits.Validate())
	cpu = limits.CPU()
	assert.Equal(t, CPUControlHardCap, cpu.Mode)
	assert.Equal(t, uint16(2500), cpu.Rate)
	assert.Equal(t, uint16(0), cpu.MinRate)
	assert.Equal(t, uint16(0), cpu.MaxRate)
}

func TestResourceLimits_WorkingSet(t *testing.T) {
	tests := []struct {
		name      string
		min, max  uint64
		shouldErr bool
		set       bool
	}{
		{"valid_bounds", 4 << 20, 64 << 20, false, true},
		{"both_zero_clears", 0, 0, false, false},
		{"min_only", 4 << 20, 0, true, false},
		{"max_only", 0, 64 << 20, true, false},
		{"min_greater_than_max", 64 << 20, 4 << 20, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limits := NewResourceLimits().SetWorkingSet(tt.min, tt.max)

			err := limits.Validate()
			if tt.shouldErr {
				assert.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
				return
			}
			assert.NoError(t, err)
			min, max, ok := limits.WorkingSet()
			assert.Equal(t, tt.set, ok)
			if tt.set {
				assert.Equal(t, tt.min, min)
				assert.Equal(t, tt.max, max)
			}
		})
	}
}

func TestResourceLimits_ZeroClearsFields(t *testing.T) {
	limits := NewResourceLimits().
		SetProcessMemoryLimit(256 << 20).
		SetMaxActiveProcesses(8).
		SetWorkingSet(4<<20, 64<<20).
		SetKillOnClose(true)

	require.NoError(t, limits.Validate())
	assert.False(t, limits.IsZero())

	limits.SetProcessMemoryLimit(0).
		SetMaxActiveProcesses(0).
		SetWorkingSet(0, 0).
		SetKillOnClose(false)

	require.NoError(t, limits.Validate())
	assert.True(t, limits.IsZero())

	_, ok := limits.ProcessMemoryLimit()
	assert.False(t, ok)
	_, ok = limits.MaxActiveProcesses()
	assert.False(t, ok)
	_, _, ok = limits.WorkingSet()
	assert.False(t, ok)
}

func TestResourceLimits_FirstErrorSticks(t *testing.T) {
	limits := NewResourceLimits().
		SetCPUHardCap(MaxCPURate + 1).
		SetCPURange(8000, 1000)

	err := limits.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hard cap")
}

func TestResourceLimits_EmptyIsValid(t *testing.T) {
	limits := NewResourceLimits()
	assert.NoError(t, limits.Validate())
	assert.True(t, limits.IsZero())
	assert.Equal(t, CPUControlNone, limits.CPU().Mode)
}
