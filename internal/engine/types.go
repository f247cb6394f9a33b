package engine

import (
	"context"
	"time"
)

type ExecSpec struct {
	Bin  string
	Args []string
	Dir  string
	// Env entries are appended to the parent environment.
	Env            []string
	DisplayCommand string
}

type ExecResult struct {
	ExitCode   int
	Duration   time.Duration
	Stopped    bool
	StderrTail string
	Err        error
}

// Hooks observe a running tool. Line is called for every completed output
// line; returning false stops reading and terminates the process.
type Hooks struct {
	Started func(pid int)
	Line    func(line string) bool
	Exited  func(pid int)
}

type ExecRunner interface {
	Run(ctx context.Context, spec ExecSpec, hooks Hooks) ExecResult
}
