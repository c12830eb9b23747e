package procgroup

import (
	"fmt"
	"io/ioutil"

	"github.com/core-tools/hsu-procgroup/pkg/errors"

	"gopkg.in/yaml.v3"
)

// LimitsConfig is the file representation of a resource limits
// specification. CPU values are plain percentages; they are converted to
// the percent x100 rates of the logical model.
type LimitsConfig struct {
	KillOnClose   bool              `yaml:"kill_on_close,omitempty"`
	WorkingSet    *WorkingSetConfig `yaml:"working_set,omitempty"`
	ProcessMemory int64             `yaml:"process_memory,omitempty"` // bytes
	MaxProcesses  int               `yaml:"max_processes,omitempty"`
	CPU           *CPUConfig        `yaml:"cpu,omitempty"`
}

// WorkingSetConfig bounds the resident working set, in bytes
type WorkingSetConfig struct {
	Min int64 `yaml:"min"`
	Max int64 `yaml:"max"`
}

// CPUConfig selects one CPU control mode. HardCapPercent and the
// min/max pair are mutually exclusive.
type CPUConfig struct {
	HardCapPercent float64 `yaml:"hard_cap_percent,omitempty"`
	MinPercent     float64 `yaml:"min_percent,omitempty"`
	MaxPercent     float64 `yaml:"max_percent,omitempty"`
}

// LoadLimitsConfigFromFile loads a limits configuration from a YAML file
func LoadLimitsConfigFromFile(filename string) (*LimitsConfig, error) {
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read limits configuration file", err).WithContext("filename", filename)
	}

	var config LimitsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML limits configuration", err).WithContext("filename", filename)
	}

	return &config, nil
}

// ValidateLimitsConfig validates the configuration values before conversion
func ValidateLimitsConfig(config *LimitsConfig) error {
	if config == nil {
		return errors.NewValidationError("limits configuration cannot be nil", nil)
	}

	if config.ProcessMemory < 0 {
		return errors.NewValidationError("process memory limit cannot be negative", nil)
	}
	if config.MaxProcesses < 0 {
		return errors.NewValidationError("max processes cannot be negative", nil)
	}

	if ws := config.WorkingSet; ws != nil {
		if ws.Min < 0 || ws.Max < 0 {
			return errors.NewValidationError("working set bounds cannot be negative", nil)
		}
	}

	if cpu := config.CPU; cpu != nil {
		hasHardCap := cpu.HardCapPercent != 0
		hasRange := cpu.MinPercent != 0 || cpu.MaxPercent != 0
		if hasHardCap && hasRange {
			return errors.NewValidationError("CPU hard cap and CPU range are mutually exclusive", nil)
		}
		for _, percent := range []float64{cpu.HardCapPercent, cpu.MinPercent, cpu.MaxPercent} {
			if percent < 0 || percent > 100 {
				return errors.NewValidationError(
					fmt.Sprintf("CPU percentage %.2f out of range [0, 100]", percent), nil)
			}
		}
	}

	return nil
}

// ResourceLimits converts the configuration into a limits specification
func (c *LimitsConfig) ResourceLimits() (*ResourceLimits, error) {
	if err := ValidateLimitsConfig(c); err != nil {
		return nil, err
	}

	limits := NewResourceLimits().
		SetKillOnClose(c.KillOnClose).
		SetProcessMemoryLimit(uint64(c.ProcessMemory)).
		SetMaxActiveProcesses(uint32(c.MaxProcesses))

	if c.WorkingSet != nil {
		limits.SetWorkingSet(uint64(c.WorkingSet.Min), uint64(c.WorkingSet.Max))
	}

	if c.CPU != nil {
		if c.CPU.HardCapPercent != 0 {
			limits.SetCPUHardCap(uint16(c.CPU.HardCapPercent * 100))
		} else if c.CPU.MaxPercent != 0 {
			limits.SetCPURange(uint16(c.CPU.MinPercent*100), uint16(c.CPU.MaxPercent*100))
		}
	}

	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return limits, nil
}
