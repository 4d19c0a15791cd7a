package main

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/burrow/internal/paths"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the configuration directory and a default config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		// PersistentPreRunE already wrote the default config if missing;
		// report where it lives.
		configDir, err := paths.ResolveConfigDir(flagConfigDir)
		if err != nil {
			return err
		}
		scratchDir, err := resolveScratchDir()
		if err != nil {
			return err
		}
		line("config:  %s", configDir)
		line("scratch: %s", scratchDir)
		return nil
	},
}
