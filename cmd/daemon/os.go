package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// appStateDir returns the directory holding the lockfile, creating it if
// needed. It is go-vgmplay under $XDG_STATE_HOME, or $HOME/.local/state,
// on Unix systems and under os.UserConfigDir elsewhere.
func appStateDir() (string, error) {
	var dir string

	switch runtime.GOOS {
	case "windows", "darwin", "ios", "plan9":
		configDir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}

		dir = configDir
	default:
		dir = os.Getenv("XDG_STATE_HOME")
		if dir == "" {
			home := os.Getenv("HOME")
			if home == "" {
				return "", errors.New("neither $XDG_STATE_HOME nor $HOME are defined")
			}

			dir = filepath.Join(home, ".local", "state")
		}
	}

	dir = filepath.Join(dir, "go-vgmplay")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed creating state directory: %w", err)
	}

	return dir, nil
}
