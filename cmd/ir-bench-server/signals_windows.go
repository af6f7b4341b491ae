//go:build windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals are the signals that trigger graceful shutdown on
// Windows. SIGQUIT does not exist there.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
