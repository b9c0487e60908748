package extract

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/libretto-pm/libretto/pkg/perr"
)

// extractExternal shells out to a CLI tool (7z, unrar) for formats with
// no practical pure-Go decoder in the pack. A missing tool is a
// capability gap, not an input or network error, so the caller can
// distinguish "this package can't be installed here" from "this
// package is broken".
func extractExternal(archivePath, destDir string, toolName string, argsFn func(archivePath, destDir string) []string) (*Report, error) {
	toolPath, err := exec.LookPath(toolName)
	if err != nil {
		return nil, perr.New(perr.KindCapability, "extract: %s is required to extract %s but was not found on PATH", toolName, filepath.Base(archivePath))
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, perr.Wrap(perr.KindIntegrity, err, "extract: create %s", destDir)
	}

	cmd := exec.Command(toolPath, argsFn(archivePath, destDir)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, perr.Wrap(perr.KindIntegrity, err, "extract: %s failed: %s", toolName, string(output))
	}

	// External tools apply their own path-traversal defenses and don't
	// report a per-entry manifest on stdout in a stable format, so the
	// report here only records that the archive was unpacked as a whole.
	return &Report{Extracted: []string{archivePath}}, nil
}

func sevenZipArgs(archivePath, destDir string) []string {
	return []string{"x", "-y", "-o" + destDir, archivePath}
}

func rarArgs(archivePath, destDir string) []string {
	return []string{"x", "-y", archivePath, destDir + string(filepath.Separator)}
}
