//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// notifySignals relays the signals that interrupt a sweep.
// SIGTERM is handled like Ctrl+C so batch schedulers get the same
// two-stage shutdown.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
}
