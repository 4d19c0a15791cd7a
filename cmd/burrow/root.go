// Root command for the burrow CLI.
package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/burrow/internal/paths"
)

// Global flag values.
var (
	flagConfigDir  string
	flagScratchDir string
	flagNamespace  string
	flagJSON       bool
	flagVerbose    bool
)

// fileCfg holds the values loaded from config.yaml. Set by
// PersistentPreRunE so all subcommands can use it.
var fileCfg fileConfig

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow manages isolated per-worker test data stores",
	Long: `Burrow provisions one isolated SQLite store per test worker, resets it
between tests without violating referential integrity, and validates the
result. It supports parallel and serial test execution without code
changes; only configuration differs.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagVerbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}

		configDir, err := paths.ResolveConfigDir(flagConfigDir)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(configDir)
		if err != nil {
			return err
		}
		fileCfg = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default: platform config dir)")
	rootCmd.PersistentFlags().StringVar(&flagScratchDir, "scratch-dir", "", "scratch directory for worker stores (default: $(CWD)/.burrow-scratch)")
	rootCmd.PersistentFlags().StringVar(&flagNamespace, "namespace", "", "run namespace scoping store file names")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(teardownCmd)
}

// resolveScratchDir follows the precedence chain:
// --scratch-dir flag > config.yaml scratch_dir > BURROW_SCRATCH_DIR env >
// default $(CWD)/.burrow-scratch.
func resolveScratchDir() (string, error) {
	return paths.ResolveScratchDir(flagScratchDir, fileCfg.ScratchDir)
}

// resolveNamespace prefers the flag over config.yaml. Empty means the
// manager generates a run-scoped namespace.
func resolveNamespace() string {
	if flagNamespace != "" {
		return flagNamespace
	}
	return fileCfg.Namespace
}
