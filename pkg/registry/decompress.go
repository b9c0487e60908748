package registry

import (
	"compress/flate"
	"compress/gzip"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// decodeBody drains resp.Body through whatever decompressor its
// Content-Encoding names, per spec.md §4.B's "gzip, deflate, brotli,
// and zstd response bodies are transparently decompressed." Go's
// net/http transport already handles "gzip" itself when the caller
// never sets Accept-Encoding, so this only matters once the registry
// client explicitly advertises the wider set below.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		r, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "registry: gzip body")
		}
		return r, nil
	case "deflate":
		return flate.NewReader(resp.Body), nil
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, errors.Wrap(err, "registry: zstd body")
		}
		return zstdReadCloser{zr}, nil
	default:
		return resp.Body, nil
	}
}

type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// acceptEncodingHeader advertises every codec decodeBody understands.
const acceptEncodingHeader = "gzip, deflate, br, zstd"
