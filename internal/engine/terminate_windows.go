//go:build windows

package engine

import "os/exec"

func configureCommandForTermination(cmd *exec.Cmd) {}

func signalGroup(pid int, force bool) {}
