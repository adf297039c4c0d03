// Package main runs the farmdeck viewer server and provider commands.
package main

import (
	"os"

	"github.com/frudas24/farmdeck/internal/logging"
)

// main is the entrypoint for farmdeck.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		logging.For("main").Errorf("fatal: %v", err)
		os.Exit(1)
	}
}
