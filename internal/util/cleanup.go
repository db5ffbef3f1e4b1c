package util

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// SetupInterruptHandler tears down process-external resources (the launched
// browser) on Ctrl-C so no orphan Chrome is left behind.
func SetupInterruptHandler(onInterrupt func()) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		fmt.Println("\nInterrupt received. Cleaning up...")

		if onInterrupt != nil {
			onInterrupt()
		}

		fmt.Println("\nExiting due to interrupt.")
		os.Exit(1)
	}()
}
