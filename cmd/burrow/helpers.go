package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/burrow/pkg/harness"
)

// newManager builds a harness manager from the resolved configuration.
func newManager() (*harness.Manager, error) {
	cfg, err := harnessConfig()
	if err != nil {
		return nil, err
	}
	return harness.New(cfg, logrus.NewEntry(logrus.StandardLogger()))
}

// printResult writes v as indented JSON when --json is set, otherwise via
// the fallback line printer.
func printResult(v any, text func()) error {
	if !flagJSON {
		text()
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// line prints a formatted line to stdout.
func line(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}
