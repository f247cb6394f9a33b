package engine

import (
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const terminatePollInterval = 25 * time.Millisecond

// Terminate asks pid (and its process group where supported) to exit, waits
// up to grace for it to go away, then kills it. A pid that is already gone
// is not an error.
func Terminate(pid int, grace time.Duration) error {
	if pid <= 0 {
		return nil
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}

	signalGroup(pid, false)
	_ = proc.Terminate()

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !isRunning(proc) {
			return nil
		}
		time.Sleep(terminatePollInterval)
	}
	if !isRunning(proc) {
		return nil
	}

	signalGroup(pid, true)
	if err := proc.Kill(); err != nil && isRunning(proc) {
		return err
	}
	return nil
}

// Alive reports whether pid refers to a live, non-zombie process.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	return isRunning(proc)
}

func isRunning(proc *process.Process) bool {
	running, err := proc.IsRunning()
	if err != nil || !running {
		return false
	}
	statuses, err := proc.Status()
	if err != nil {
		return true
	}
	for _, status := range statuses {
		if status == process.Zombie {
			return false
		}
	}
	return true
}
