package main

import (
	"github.com/spf13/cobra"
)

var provisionWorker int

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Ensure a worker's store exists and is schema-valid",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newManager()
		if err != nil {
			return err
		}
		defer func() { _ = mgr.Release() }()

		slot, err := mgr.Provision(cmd.Context(), provisionWorker)
		if err != nil {
			return err
		}

		out := struct {
			WorkerIndex   int    `json:"workerIndex"`
			Namespace     string `json:"namespace"`
			StoreLocation string `json:"storeLocation"`
			State         string `json:"state"`
		}{slot.WorkerIndex, mgr.Namespace(), slot.Location, string(slot.State())}
		return printResult(out, func() {
			line("worker %d provisioned", out.WorkerIndex)
			line("namespace: %s", out.Namespace)
			line("store:     %s", out.StoreLocation)
		})
	},
}

func init() {
	provisionCmd.Flags().IntVar(&provisionWorker, "worker", 0, "worker index")
}
