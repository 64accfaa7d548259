package server

import (
	"context"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/uwb-telemetry/internal/logger"
)

// processLister lists running processes, ps.Processes outside tests.
type processLister func() ([]ps.Process, error)

// otherInstances returns the pids of processes named like executable, except self.
func otherInstances(list processLister, executable string, self int) ([]int, error) {
	processList, err := list()
	if err != nil {
		return nil, err
	}

	var pids []int

	for _, process := range processList {
		if process.Pid() == self || process.Executable() != executable {
			continue
		}

		pids = append(pids, process.Pid())
	}

	return pids, nil
}

// warnOtherInstances logs when another daemon already runs on this host. Two
// daemons would fight over the same serial ports.
func warnOtherInstances(ctx context.Context) {
	executable := filepath.Base(os.Args[0])

	pids, err := otherInstances(ps.Processes, executable, os.Getpid())
	if err != nil {
		logger.DebugKV(ctx, "Unable to list processes", "error", err)

		return
	}

	if len(pids) > 0 {
		logger.WarnKV(ctx, "Another ingestion daemon is running", "executable", executable, "pids", pids)
	}
}
