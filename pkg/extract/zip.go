package extract

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"

	"github.com/libretto-pm/libretto/pkg/perr"
)

// extractZip unpacks a .zip archive, routing every entry through
// resolveEntryPath/resolveSymlinkTarget so a zip-slip entry is rejected
// or skipped per opts.UnsafePolicy rather than written outside destDir.
func extractZip(archivePath, destDir string, opts Options) (*Report, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, perr.Wrap(perr.KindInput, err, "extract: open %s", archivePath)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, perr.Wrap(perr.KindIntegrity, err, "extract: create %s", destDir)
	}

	report := &Report{}
	for _, entry := range r.File {
		if err := extractZipEntry(entry, destDir, opts, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func extractZipEntry(entry *zip.File, destDir string, opts Options, report *Report) error {
	mode := entry.Mode()
	isDir := entry.FileInfo().IsDir() || entry.Name[len(entry.Name)-1] == '/'

	target, ok, err := resolveEntryPath(entry.Name, destDir, opts)
	if err != nil {
		return err
	}
	if !ok {
		report.Skipped = append(report.Skipped, entry.Name)
		return nil
	}

	if isDir {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return perr.Wrap(perr.KindIntegrity, err, "extract: mkdir %s", target)
		}
		report.Extracted = append(report.Extracted, entry.Name)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return perr.Wrap(perr.KindIntegrity, err, "extract: mkdir %s", filepath.Dir(target))
	}

	rc, err := entry.Open()
	if err != nil {
		return perr.Wrap(perr.KindInput, err, "extract: open entry %s", entry.Name)
	}
	defer rc.Close()

	if mode&os.ModeSymlink != 0 {
		linkData, err := io.ReadAll(rc)
		if err != nil {
			return perr.Wrap(perr.KindInput, err, "extract: read symlink %s", entry.Name)
		}
		linkname, ok, err := resolveSymlinkTarget(string(linkData), filepath.Dir(target), destDir, opts)
		if err != nil {
			return err
		}
		if !ok {
			report.Skipped = append(report.Skipped, entry.Name)
			return nil
		}
		os.Remove(target)
		if err := os.Symlink(linkname, target); err != nil {
			return perr.Wrap(perr.KindIntegrity, err, "extract: symlink %s", target)
		}
		report.Extracted = append(report.Extracted, entry.Name)
		return nil
	}

	perm := os.FileMode(0o644)
	if opts.PreservePermissions && mode&0o111 != 0 {
		perm = 0o755
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return perr.Wrap(perr.KindIntegrity, err, "extract: create %s", target)
	}
	_, copyErr := io.Copy(out, rc)
	closeErr := out.Close()
	if copyErr != nil {
		return perr.Wrap(perr.KindIntegrity, copyErr, "extract: write %s", target)
	}
	if closeErr != nil {
		return perr.Wrap(perr.KindIntegrity, closeErr, "extract: close %s", target)
	}
	report.Extracted = append(report.Extracted, entry.Name)
	return nil
}
