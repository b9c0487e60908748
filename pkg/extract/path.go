package extract

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/libretto-pm/libretto/pkg/perr"
)

// withinRoot reports whether target is lexically contained in root.
// Extraction targets do not exist yet, so nothing is os.Stat'ed — the
// check here is purely textual, which is exactly what a zip-slip
// guard needs: filepath.Join already collapses ".." segments before
// this ever runs, so a path that still doesn't have root as a prefix
// genuinely points outside it.
func withinRoot(target, root string) bool {
	target = filepath.Clean(target)
	root = filepath.Clean(root)
	if target == root {
		return true
	}
	return strings.HasPrefix(target, root+string(os.PathSeparator))
}

// resolveEntryPath applies StripComponents then maps an archive entry
// name (always "/"-separated, per the zip/tar spec, regardless of host
// OS) onto a path under destDir, rejecting anything that would land
// outside destDir: an absolute entry path, a ".." component that walks
// out of the root, or — after StripComponents reduces it to nothing —
// an entry with no remaining path segments at all.
//
// ok is false when the entry should be skipped: either StripComponents
// consumed its entire path, or it is unsafe and opts.UnsafePolicy is
// PolicySkip. An unsafe entry under PolicyReject returns an error.
func resolveEntryPath(name string, destDir string, opts Options) (target string, ok bool, err error) {
	clean := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if path.IsAbs(clean) {
		return unsafeEntry(name, opts)
	}

	segments := strings.Split(clean, "/")
	if opts.StripComponents > 0 {
		if len(segments) <= opts.StripComponents {
			return "", false, nil
		}
		segments = segments[opts.StripComponents:]
	}
	relative := strings.Join(segments, "/")
	if relative == "" || relative == "." {
		return "", false, nil
	}

	target = filepath.Join(destDir, filepath.FromSlash(relative))
	if !withinRoot(target, destDir) {
		return unsafeEntry(name, opts)
	}
	return target, true, nil
}

// resolveSymlinkTarget validates that a symlink entry's link text, once
// resolved relative to the symlink's own directory, still stays within
// destDir. Absolute link targets are always rejected.
func resolveSymlinkTarget(linkname, entryDir, destDir string, opts Options) (string, bool, error) {
	if filepath.IsAbs(linkname) {
		return unsafeEntry(linkname, opts)
	}
	resolved := filepath.Join(entryDir, filepath.FromSlash(linkname))
	if !withinRoot(resolved, destDir) {
		return unsafeEntry(linkname, opts)
	}
	return linkname, true, nil
}

func unsafeEntry(name string, opts Options) (string, bool, error) {
	if opts.UnsafePolicy == PolicySkip {
		return "", false, nil
	}
	return "", false, perr.New(perr.KindIntegrity, "extract: entry %q escapes the extraction root", name)
}
