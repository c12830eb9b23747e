package main

import (
	"fmt"
	"os"

	"github.com/core-tools/hsu-procgroup/pkg/logging"
	"github.com/core-tools/hsu-procgroup/pkg/procgroup"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Name      string `long:"name" description:"name of the group kernel object (empty for anonymous)"`
	Limits    string `long:"limits" description:"path to a YAML limits configuration file"`
	PIDs      []int  `long:"pid" description:"process id to attach to the group (repeatable)"`
	Query     bool   `long:"query" description:"print the currently applied limits"`
	Terminate bool   `long:"terminate" description:"terminate all group members before exit"`
	ExitCode  int    `long:"exit-code" default:"1" description:"exit code for terminated members"`
	LogLevel  string `long:"log-level" default:"info" description:"log level: debug, info, warn, error"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v", err)
		os.Exit(1)
	}

	zapConfig := logging.DefaultZapConfig()
	zapConfig.Level = opts.LogLevel
	logger := logging.NewZapLogger(zapConfig)

	logger.Infof("opts: %+v", opts)

	group, err := procgroup.NewProcessGroup(opts.Name, logger)
	if err != nil {
		logger.Errorf("Failed to create process group: %v", err)
		os.Exit(1)
	}
	defer group.Close()

	if opts.Limits != "" {
		config, err := procgroup.LoadLimitsConfigFromFile(opts.Limits)
		if err != nil {
			logger.Errorf("Failed to load limits configuration: %v", err)
			os.Exit(1)
		}
		limits, err := config.ResourceLimits()
		if err != nil {
			logger.Errorf("Invalid limits configuration: %v", err)
			os.Exit(1)
		}
		if err := group.ApplyLimits(limits); err != nil {
			logger.Errorf("Failed to apply limits: %v", err)
			os.Exit(1)
		}
	}

	for _, pid := range opts.PIDs {
		if err := group.AddPID(pid); err != nil {
			logger.Errorf("Failed to attach PID %d: %v", pid, err)
			os.Exit(1)
		}
	}

	if opts.Query {
		limits, err := group.CurrentLimits()
		if err != nil {
			logger.Errorf("Failed to query limits: %v", err)
			os.Exit(1)
		}
		printLimits(limits)
	}

	if opts.Terminate {
		if err := group.TerminateAll(opts.ExitCode); err != nil {
			logger.Errorf("Failed to terminate group: %v", err)
			os.Exit(1)
		}
	}
}

func printLimits(limits *procgroup.ResourceLimits) {
	fmt.Printf("kill-on-close: %v\n", limits.KillOnClose())
	if min, max, ok := limits.WorkingSet(); ok {
		fmt.Printf("working set: %d..%d bytes\n", min, max)
	} else {
		fmt.Println("working set: unset")
	}
	if bytes, ok := limits.ProcessMemoryLimit(); ok {
		fmt.Printf("process memory: %d bytes\n", bytes)
	} else {
		fmt.Println("process memory: unset")
	}
	if n, ok := limits.MaxActiveProcesses(); ok {
		fmt.Printf("max processes: %d\n", n)
	} else {
		fmt.Println("max processes: unset")
	}
	cpu := limits.CPU()
	switch cpu.Mode {
	case procgroup.CPUControlHardCap:
		fmt.Printf("cpu: hard cap %.2f%%\n", float64(cpu.Rate)/100)
	case procgroup.CPUControlMinMax:
		fmt.Printf("cpu: range %.2f%%..%.2f%%\n", float64(cpu.MinRate)/100, float64(cpu.MaxRate)/100)
	default:
		fmt.Println("cpu: unrestricted")
	}
}
