// Package paths resolves configuration and scratch directory locations.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// CWD-relative directory name for the scratch area holding worker stores.
const DefaultScratchDirName = ".burrow-scratch"

// Environment variable names for directory overrides.
const (
	EnvConfigDir  = "BURROW_CONFIG_DIR"
	EnvScratchDir = "BURROW_SCRATCH_DIR"
)

// DefaultConfigDir returns the platform-specific default configuration
// directory.
//
// Linux:   $XDG_CONFIG_HOME/burrow (fallback ~/.config/burrow)
// macOS:   ~/Library/Application Support/burrow
// Windows: %APPDATA%/burrow
func DefaultConfigDir() (string, error) {
	switch runtime.GOOS {
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "burrow"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "burrow"), nil
	default:
		// macOS and Windows use os.UserConfigDir which returns
		// ~/Library/Application Support on macOS and %APPDATA% on Windows.
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, "burrow"), nil
	}
}

// ResolveConfigDir returns the configuration directory following the
// precedence chain: flag > BURROW_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveScratchDir returns the scratch directory following the precedence
// chain: flag > configYAMLValue > BURROW_SCRATCH_DIR env > default
// $(CWD)/.burrow-scratch.
//
// The CWD-relative default keeps the scratch area inside the project the
// tests belong to, so a run owns (and may delete) the whole tree.
func ResolveScratchDir(flag, configYAMLValue string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configYAMLValue != "" {
		return filepath.Abs(configYAMLValue)
	}
	if env := os.Getenv(EnvScratchDir); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultScratchDirName), nil
}
