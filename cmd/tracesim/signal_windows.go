//go:build windows

package main

import (
	"os"
	"os/signal"
)

// notifySignals relays the signals that interrupt a sweep.
// Windows has no SIGTERM, so only Ctrl+C is relayed.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, os.Interrupt)
}
