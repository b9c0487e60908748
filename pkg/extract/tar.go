package extract

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/libretto-pm/libretto/pkg/perr"
)

// extractTarArchive unpacks a tar container, selecting the decompressing
// reader that matches format before handing the stream to archive/tar.
func extractTarArchive(archivePath, destDir string, format Format, opts Options) (*Report, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, perr.Wrap(perr.KindInput, err, "extract: open %s", archivePath)
	}
	defer f.Close()

	src, closer, err := decompressingReader(f, format)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		defer closer()
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, perr.Wrap(perr.KindIntegrity, err, "extract: create %s", destDir)
	}

	report := &Report{}
	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return report, perr.Wrap(perr.KindInput, err, "extract: read tar header in %s", archivePath)
		}
		if err := extractTarEntry(tr, hdr, destDir, opts, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// decompressingReader wraps f with the decompressor matching format. The
// returned closer (nil for FormatTar, which needs none) must be called
// once the caller is done reading.
func decompressingReader(f *os.File, format Format) (io.Reader, func(), error) {
	switch format {
	case FormatTar:
		return f, nil, nil
	case FormatTarGz:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, perr.Wrap(perr.KindInput, err, "extract: open gzip stream")
		}
		return gz, func() { gz.Close() }, nil
	case FormatTarBz2:
		return bzip2.NewReader(f), nil, nil
	case FormatTarXz:
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, nil, perr.Wrap(perr.KindInput, err, "extract: open xz stream")
		}
		return xr, nil, nil
	case FormatTarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, nil, perr.Wrap(perr.KindInput, err, "extract: open zstd stream")
		}
		return zr, zr.Close, nil
	default:
		return nil, nil, perr.New(perr.KindInput, "extract: %v is not a tar-family format", format)
	}
}

func extractTarEntry(tr *tar.Reader, hdr *tar.Header, destDir string, opts Options, report *Report) error {
	target, ok, err := resolveEntryPath(hdr.Name, destDir, opts)
	if err != nil {
		return err
	}
	if !ok {
		report.Skipped = append(report.Skipped, hdr.Name)
		return nil
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(target, 0o755); err != nil {
			return perr.Wrap(perr.KindIntegrity, err, "extract: mkdir %s", target)
		}

	case tar.TypeSymlink:
		linkname, ok, err := resolveSymlinkTarget(hdr.Linkname, filepath.Dir(target), destDir, opts)
		if err != nil {
			return err
		}
		if !ok {
			report.Skipped = append(report.Skipped, hdr.Name)
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return perr.Wrap(perr.KindIntegrity, err, "extract: mkdir %s", filepath.Dir(target))
		}
		os.Remove(target)
		if err := os.Symlink(linkname, target); err != nil {
			return perr.Wrap(perr.KindIntegrity, err, "extract: symlink %s", target)
		}

	case tar.TypeReg, tar.TypeRegA:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return perr.Wrap(perr.KindIntegrity, err, "extract: mkdir %s", filepath.Dir(target))
		}
		perm := os.FileMode(0o644)
		if opts.PreservePermissions && hdr.Mode&0o111 != 0 {
			perm = 0o755
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
		if err != nil {
			return perr.Wrap(perr.KindIntegrity, err, "extract: create %s", target)
		}
		_, copyErr := io.Copy(out, tr)
		closeErr := out.Close()
		if copyErr != nil {
			return perr.Wrap(perr.KindIntegrity, copyErr, "extract: write %s", target)
		}
		if closeErr != nil {
			return perr.Wrap(perr.KindIntegrity, closeErr, "extract: close %s", target)
		}

	default:
		// Device nodes, FIFOs, and other non-portable entry types are
		// silently skipped: a package archive has no legitimate use for
		// them and they cannot be represented cross-platform.
		report.Skipped = append(report.Skipped, hdr.Name)
		return nil
	}

	report.Extracted = append(report.Extracted, hdr.Name)
	return nil
}
