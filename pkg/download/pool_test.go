package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/libretto-pm/libretto/pkg/manifest"
)

func pid(t *testing.T, s string) manifest.PackageID {
	t.Helper()
	id, err := manifest.ParsePackageID(s)
	if err != nil {
		t.Fatalf("ParsePackageID(%q): %v", s, err)
	}
	return id
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestDownloadVerifiesChecksumAndPlacesFile(t *testing.T) {
	const payload = "package archive contents"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "acme-widget-1.0.0.zip")

	pool := NewPool(srv.Client())
	results, err := pool.Download(context.Background(), []Task{{
		Package:  pid(t, "acme/widget"),
		URL:      srv.URL,
		Dest:     dest,
		Expected: map[string]string{"sha256": sha256Hex(payload)},
	}})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("unexpected result: %+v", results)
	}

	data, err := os.ReadFile(dest)
	if err != nil || string(data) != payload {
		t.Fatalf("expected placed file to contain payload, got %q err %v", data, err)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Error("expected the .part staging file to be gone after placement")
	}
}

func TestDownloadChecksumMismatchIsHardError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("wrong contents"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "acme-widget-1.0.0.zip")

	pool := NewPool(srv.Client())
	pool.RetryBudget = 1
	results, _ := pool.Download(context.Background(), []Task{{
		Package:  pid(t, "acme/widget"),
		URL:      srv.URL,
		Dest:     dest,
		Expected: map[string]string{"sha256": sha256Hex("expected contents")},
	}})
	if len(results) != 1 || results[0].Err == nil {
		t.Fatalf("expected a checksum-mismatch error, got %+v", results)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Error("expected the mismatched .part file to be removed")
	}
}

func TestDownloadFallsBackToMirror(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer primary.Close()

	const payload = "mirrored contents"
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer mirror.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "acme-widget-1.0.0.zip")

	pool := NewPool(http.DefaultClient)
	results, err := pool.Download(context.Background(), []Task{{
		Package: pid(t, "acme/widget"),
		URL:     primary.URL,
		Mirrors: []string{mirror.URL},
		Dest:    dest,
	}})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if results[0].Err != nil {
		t.Fatalf("expected the mirror to succeed, got %v", results[0].Err)
	}
	if results[0].Source != mirror.URL {
		t.Errorf("expected Source to be the mirror, got %s", results[0].Source)
	}
}

func TestDownloadResumesFromPartFile(t *testing.T) {
	const payload = "0123456789ABCDEF"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHdr := r.Header.Get("Range")
		if rangeHdr == "" {
			w.Write([]byte(payload))
			return
		}
		var start int
		if _, err := parseRangeStart(rangeHdr, &start); err != nil {
			http.Error(w, "bad range", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Range", "bytes "+strconv.Itoa(start)+"-/"+strconv.Itoa(len(payload)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(payload[start:]))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "resume.bin")
	if err := os.WriteFile(dest+".part", []byte(payload[:8]), 0o644); err != nil {
		t.Fatalf("seed .part: %v", err)
	}

	pool := NewPool(srv.Client())
	results, err := pool.Download(context.Background(), []Task{{
		Package:  pid(t, "acme/resume"),
		URL:      srv.URL,
		Dest:     dest,
		Expected: map[string]string{"sha256": sha256Hex(payload)},
	}})
	if err != nil || results[0].Err != nil {
		t.Fatalf("Download: %v, result err: %v", err, results[0].Err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != payload {
		t.Fatalf("expected resumed file to equal full payload, got %q err %v", data, err)
	}
}

func parseRangeStart(header string, out *int) (int, error) {
	spec := strings.TrimPrefix(header, "bytes=")
	spec = strings.TrimSuffix(spec, "-")
	n, err := strconv.Atoi(spec)
	if err != nil {
		return 0, err
	}
	*out = n
	return n, nil
}
