package lockfile

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	internalfs "github.com/libretto-pm/libretto/internal/fs"
)

// tempPrefix marks in-progress lock writes so a crashed process's
// leftovers are recognizable by CleanupStaleTempFiles.
const tempPrefix = ".manifest.lock.tmp-"

// AtomicWrite writes data to path via a temp-file-then-rename sequence:
// write and fsync the temp file, fsync the containing directory, back up
// any existing file to path+".bak", rename into place, then fsync the
// directory again so the rename itself is durable. Grounded on golang-dep/txn_writer.go's
// SafeWriter (move-old-aside, move-new-in, restore-on-failure) and
// internal/fs's RenameWithFallback for the actual rename step.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return errors.Wrap(err, "lockfile: creating temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "lockfile: writing temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "lockfile: fsyncing temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "lockfile: closing temp file")
	}
	if err := syncDir(dir); err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		if err := internalfs.RenameWithFallback(path, path+".bak"); err != nil {
			return errors.Wrap(err, "lockfile: backing up existing lock file")
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, "lockfile: statting existing lock file")
	}

	if err := internalfs.RenameWithFallback(tmpPath, path); err != nil {
		// Best-effort restore of the backup so a failed write never leaves
		// the project without any lock file at all.
		internalfs.RenameWithFallback(path+".bak", path)
		return errors.Wrap(err, "lockfile: renaming temp file into place")
	}

	return syncDir(dir)
}

// syncDir fsyncs a directory so a subsequent crash cannot observe the
// rename having happened to the file but not to the directory entry.
// Directories cannot be fsynced on Windows; the error there is ignored.
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return errors.Wrap(err, "lockfile: opening directory for fsync")
	}
	defer f.Close()
	if err := f.Sync(); err != nil && !os.IsPermission(err) {
		return errors.Wrap(err, "lockfile: fsyncing directory")
	}
	return nil
}

// CleanupStaleTempFiles removes leftover temp files from a previous
// crashed write, so a crash mid-AtomicWrite never leaks files into the
// project directory indefinitely.
func CleanupStaleTempFiles(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, "lockfile: reading directory for stale-temp sweep")
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if len(e.Name()) > len(tempPrefix) && e.Name()[:len(tempPrefix)] == tempPrefix {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "lockfile: removing stale temp file %s", e.Name())
			}
		}
	}
	return nil
}
