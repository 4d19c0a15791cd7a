package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Delete provisioned stores and lock files",
	Long: `Teardown deletes the namespace directory when --namespace (or the
configured namespace) is set, and the entire scratch directory otherwise.
The scratch directory is wholly owned by the test run, so removing it is
always safe once tests have finished.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scratchDir, err := resolveScratchDir()
		if err != nil {
			return err
		}

		target := scratchDir
		if ns := resolveNamespace(); ns != "" {
			target = filepath.Join(scratchDir, ns)
		}
		if err := os.RemoveAll(target); err != nil {
			return err
		}
		line("removed %s", target)
		return nil
	},
}
