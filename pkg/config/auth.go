package config

import (
	"os"
	"path/filepath"
)

// AuthFileName is the canonical auth file name (spec.md §6).
const AuthFileName = "auth.json"

// AuthPaths resolves the project-local and user-global auth.json
// locations a credential.Broker is constructed from: the project file
// lives next to manifest.json, the user file lives under
// $XDG_CONFIG_HOME/libretto, or ~/.libretto when that is unset.
func AuthPaths(projectRoot string) (projectAuthPath, userAuthPath string) {
	projectAuthPath = filepath.Join(projectRoot, AuthFileName)
	userAuthPath = filepath.Join(userConfigHome(), AuthFileName)
	return projectAuthPath, userAuthPath
}

func userConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "libretto")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".libretto")
	}
	return ".libretto"
}
