package config

import "os"

// ApplyEnv layers the environment variables spec.md §6 documents
// ("Environment variables consumed") over a Resolved value: directory
// overrides, a non-interactive switch, and a network kill-switch.
// *_PROXY/NO_PROXY are not applied here — net/http's
// ProxyFromEnvironment already reads them, so the default transport
// behind the HTTP clients cmd/libretto builds picks them up without
// this package's involvement.
func ApplyEnv(r *Resolved) {
	if v := os.Getenv("LIBRETTO_CACHE_DIR"); v != "" {
		r.CacheDir = v
	}
	if v := os.Getenv("LIBRETTO_VENDOR_DIR"); v != "" {
		r.VendorDir = v
	}
	if v := os.Getenv("LIBRETTO_BIN_DIR"); v != "" {
		r.BinDir = v
	}
}

// NonInteractive reports whether the environment forces non-interactive
// mode (spec.md §6: "one to force non-interactive"); cmd/libretto uses
// it to set the credential broker's Interactive switch.
func NonInteractive() bool {
	return os.Getenv("LIBRETTO_NO_INTERACTION") != ""
}

// NetworkDisabled reports whether the environment forbids outbound
// network access (spec.md §6: "one to disable network"); cmd/libretto
// checks it once at startup and then leaves the registry fetcher, the
// metadata cache and the download pool unconfigured.
func NetworkDisabled() bool {
	return os.Getenv("LIBRETTO_NO_NETWORK") != ""
}

// defaultCacheDir mirrors Composer's own XDG-ish default: a
// "libretto"-named directory under the user cache home, falling back to
// HOME when the platform-specific cache variable is unset.
func defaultCacheDir() string {
	if v := os.Getenv("XDG_CACHE_HOME"); v != "" {
		return v + "/libretto"
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.cache/libretto"
	}
	return ".libretto-cache"
}
