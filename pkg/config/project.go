package config

import (
	"os"
	"path/filepath"

	"github.com/libretto-pm/libretto/pkg/manifest"
	"github.com/libretto-pm/libretto/pkg/perr"
)

// FindProjectRoot searches upward from dir for manifest.FileName,
// stopping at the filesystem root. An empty dir searches from the
// current working directory.
func FindProjectRoot(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", perr.Wrap(perr.KindInput, err, "config: get working directory")
		}
		dir = wd
	}
	for {
		candidate := filepath.Join(dir, manifest.FileName)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		} else if !os.IsNotExist(err) {
			return "", perr.Wrap(perr.KindInput, err, "config: stat %s", candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", perr.New(perr.KindInput, "config: no %s found in %s or any parent directory", manifest.FileName, dir)
		}
		dir = parent
	}
}
