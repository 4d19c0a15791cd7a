// Config loading for the burrow CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/burrow/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"
)

// defaultConfigYAML is the content written to config.yaml on first run.
const defaultConfigYAML = `# Burrow configuration

# Reset strategy: ordered_delete, full_recreate, or tx_rollback
strategy: ordered_delete

# Upper bound on concurrently registered workers
max_workers: 64

# Run namespace (optional; generated per run when empty)
# namespace:

# Scratch directory (optional; overridable by --scratch-dir flag)
# scratch_dir:

# Shared secret required by the HTTP reset/validate endpoints
# token:

# Listen address for burrow serve
listen_addr: "127.0.0.1:7077"
`

// fileConfig is the shape of config.yaml.
type fileConfig struct {
	Namespace    string        `mapstructure:"namespace"`
	ScratchDir   string        `mapstructure:"scratch_dir"`
	Strategy     string        `mapstructure:"strategy" validate:"required,oneof=ordered_delete full_recreate tx_rollback"`
	MaxWorkers   int           `mapstructure:"max_workers" validate:"required,gte=1"`
	LockTimeout  time.Duration `mapstructure:"lock_timeout" validate:"gte=0"`
	OpTimeout    time.Duration `mapstructure:"op_timeout" validate:"gte=0"`
	PreserveSeed bool          `mapstructure:"preserve_seed"`
	Token        string        `mapstructure:"token"`
	ListenAddr   string        `mapstructure:"listen_addr"`
}

var cfgValidate = validator.New()

// loadConfig reads config.yaml from the resolved config directory using
// Viper, creating the directory and a default file on first run. A missing
// config.yaml is not an error.
func loadConfig(configDir string) (fileConfig, error) {
	var cfg fileConfig

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return cfg, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return cfg, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault("strategy", types.StrategyOrderedDelete)
	v.SetDefault("max_workers", 64)
	v.SetDefault("lock_timeout", 10*time.Second)
	v.SetDefault("op_timeout", 30*time.Second)
	v.SetDefault("preserve_seed", true)
	v.SetDefault("listen_addr", "127.0.0.1:7077")
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if err := cfgValidate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ensureDefaultConfigFile creates a default config.yaml if the file does
// not exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// harnessConfig assembles the manager configuration from flags and
// config.yaml.
func harnessConfig() (types.Config, error) {
	scratchDir, err := resolveScratchDir()
	if err != nil {
		return types.Config{}, err
	}

	cfg := types.DefaultConfig(scratchDir)
	cfg.Namespace = resolveNamespace()
	cfg.Strategy = fileCfg.Strategy
	cfg.MaxWorkers = fileCfg.MaxWorkers
	cfg.PreserveSeed = fileCfg.PreserveSeed
	if fileCfg.LockTimeout > 0 {
		cfg.LockTimeout = fileCfg.LockTimeout
	}
	if fileCfg.OpTimeout > 0 {
		cfg.OpTimeout = fileCfg.OpTimeout
	}
	return cfg, nil
}
