// Package main provides the burrow CLI: provisioning, resetting, and
// validating isolated per-worker test data stores.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mesh-intelligence/burrow/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
	os.Exit(exitSuccess)
}

// exitCodeFor distinguishes caller mistakes from infrastructure failures.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, types.ErrWorkerUnknown),
		errors.Is(err, types.ErrRegistryExhausted),
		errors.Is(err, types.ErrStrategyUnknown):
		return exitUserError
	default:
		return exitSysError
	}
}
