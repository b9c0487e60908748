// Package extract implements the format-dispatched archive extractor
// (spec.md §4.H): zip, tar (+gzip/bzip2/xz/zstd), and 7z/rar via an
// external tool, with a path-traversal guard, optional path-prefix
// stripping, and POSIX permission preservation.
package extract

import (
	"path/filepath"
	"strings"

	"github.com/libretto-pm/libretto/pkg/perr"
)

// Format identifies an archive's container/compression combination.
type Format int

const (
	FormatZip Format = iota + 1
	FormatTar
	FormatTarGz
	FormatTarBz2
	FormatTarXz
	FormatTarZst
	FormatSevenZip
	FormatRar
)

// UnsafePolicy governs what happens when an entry's target would escape
// the extraction root (spec.md §4.H: "rejected (or skipped with a
// warning, policy-configurable)").
type UnsafePolicy int

const (
	// PolicyReject aborts the whole extraction on the first unsafe entry.
	PolicyReject UnsafePolicy = iota
	// PolicySkip silently drops the unsafe entry and continues.
	PolicySkip
)

// Options configures one Extract call.
type Options struct {
	// StripComponents drops the first N path segments of every entry;
	// an entry with N or fewer segments is skipped entirely.
	StripComponents int
	// UnsafePolicy governs path-traversal handling. Zero value is
	// PolicyReject.
	UnsafePolicy UnsafePolicy
	// PreservePermissions carries the archive's owner-exec bit onto the
	// extracted file (POSIX only). The zero value (false) leaves that bit
	// off; Extract does not default it to true.
	PreservePermissions bool
}

// Report summarizes one Extract call.
type Report struct {
	Extracted []string
	// Skipped lists entries dropped by PolicySkip or by StripComponents
	// consuming an entry's entire path.
	Skipped []string
}

// DetectFormat infers a Format from an archive's filename extension,
// matching spec.md §4.H's "format dispatch by filename extension".
func DetectFormat(name string) (Format, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"):
		return FormatTarBz2, nil
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return FormatTarXz, nil
	case strings.HasSuffix(lower, ".tar.zst"):
		return FormatTarZst, nil
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar, nil
	case strings.HasSuffix(lower, ".7z"):
		return FormatSevenZip, nil
	case strings.HasSuffix(lower, ".rar"):
		return FormatRar, nil
	default:
		return 0, perr.New(perr.KindInput, "extract: unrecognized archive extension in %q", name)
	}
}

// Extract dispatches archivePath to the extractor matching its format
// and unpacks it into destDir, which is created if absent.
func Extract(archivePath, destDir string, opts Options) (*Report, error) {
	format, err := DetectFormat(archivePath)
	if err != nil {
		return nil, err
	}
	destDir = filepath.Clean(destDir)

	switch format {
	case FormatZip:
		return extractZip(archivePath, destDir, opts)
	case FormatTar, FormatTarGz, FormatTarBz2, FormatTarXz, FormatTarZst:
		return extractTarArchive(archivePath, destDir, format, opts)
	case FormatSevenZip:
		return extractExternal(archivePath, destDir, "7z", sevenZipArgs)
	case FormatRar:
		return extractExternal(archivePath, destDir, "unrar", rarArgs)
	default:
		return nil, perr.New(perr.KindInput, "extract: unsupported format for %q", archivePath)
	}
}
