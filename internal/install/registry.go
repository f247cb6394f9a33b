package install

import (
	"sync"
	"time"

	"github.com/jaa/deckload/internal/engine"
)

// processRegistry tracks the external tool currently running for the run so
// Cancel and Pause can signal it from another goroutine.
type processRegistry struct {
	mu  sync.Mutex
	pid int
}

func (r *processRegistry) set(pid int) {
	r.mu.Lock()
	r.pid = pid
	r.mu.Unlock()
}

// clear forgets pid if it is still the tracked process.
func (r *processRegistry) clear(pid int) {
	r.mu.Lock()
	if r.pid == pid {
		r.pid = 0
	}
	r.mu.Unlock()
}

func (r *processRegistry) current() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pid
}

// terminate signals the tracked process, waits up to grace, then kills it.
// With nothing tracked this is a no-op.
func (r *processRegistry) terminate(grace time.Duration) (int, error) {
	pid := r.current()
	if pid == 0 {
		return 0, nil
	}
	return pid, engine.Terminate(pid, grace)
}
