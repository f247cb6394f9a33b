//go:build !windows

package cli

import (
	"os"
	"syscall"
)

// interruptSignals stop a running install. SIGHUP covers a dropped SSH
// session to the machine running deckload.
func interruptSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}
}
