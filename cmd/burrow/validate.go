package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/burrow/internal/validate"
)

var validateWorker int

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that a worker's store is in a clean, consistent state",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newManager()
		if err != nil {
			return err
		}
		defer func() { _ = mgr.Release() }()

		if _, err := mgr.Provision(cmd.Context(), validateWorker); err != nil {
			return err
		}

		result, err := mgr.Validate(cmd.Context(), validateWorker, validate.TypePreTest)
		if err != nil {
			return err
		}
		if err := printResult(result, func() {
			if result.IsValid {
				line("worker %d: store valid", validateWorker)
				return
			}
			line("worker %d: %d violations", validateWorker, len(result.Violations))
			for _, v := range result.Violations {
				line("  [%s] %s: %s", v.Kind, v.Table, v.Detail)
			}
		}); err != nil {
			return err
		}
		if !result.IsValid {
			return fmt.Errorf("store for worker %d failed validation", validateWorker)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().IntVar(&validateWorker, "worker", 0, "worker index")
}
