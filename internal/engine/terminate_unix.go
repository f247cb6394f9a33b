//go:build !windows

package engine

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func configureCommandForTermination(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup signals the whole process group so helpers spawned by the
// tool (sshpass -> ssh) go down with it.
func signalGroup(pid int, force bool) {
	sig := unix.SIGTERM
	if force {
		sig = unix.SIGKILL
	}
	_ = unix.Kill(-pid, sig)
}
