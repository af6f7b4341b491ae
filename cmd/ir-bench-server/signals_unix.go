//go:build !windows

package main

import (
	"os"
	"syscall"
)

// shutdownSignals are the signals that trigger graceful shutdown on
// Unix-like systems.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT}
