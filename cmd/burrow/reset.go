package main

import (
	"github.com/spf13/cobra"
)

var (
	resetWorker   int
	resetKeepSeed bool
	resetRecreate bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Return a worker's store to an empty, schema-valid state",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newManager()
		if err != nil {
			return err
		}
		defer func() { _ = mgr.Release() }()

		// One-shot invocations provision-or-adopt before resetting.
		if _, err := mgr.Provision(cmd.Context(), resetWorker); err != nil {
			return err
		}

		outcome, err := func() (any, error) {
			if resetRecreate {
				return mgr.Recreate(cmd.Context(), resetWorker)
			}
			return mgr.Reset(cmd.Context(), resetWorker, resetKeepSeed)
		}()
		if err != nil {
			return err
		}
		return printResult(outcome, func() {
			line("worker %d reset", resetWorker)
		})
	},
}

func init() {
	resetCmd.Flags().IntVar(&resetWorker, "worker", 0, "worker index")
	resetCmd.Flags().BoolVar(&resetKeepSeed, "keep-seed", true, "preserve built-in seed rows across the reset")
	resetCmd.Flags().BoolVar(&resetRecreate, "recreate", false, "destroy and re-provision the store instead of deleting rows")
}
