// Package config resolves the manifest's "config" block (spec.md §6)
// into a typed Resolved struct the core packages consume. Per spec.md
// §6's explicit non-goal on config/auth-file loading, no core package
// reaches into this one on its own — cmd/libretto builds a Resolved
// value once, during startup, and passes it down.
package config

import (
	"encoding/json"
	"path/filepath"
	"strconv"
	"time"

	"github.com/libretto-pm/libretto/pkg/perr"
)

// PreferredInstall selects how a package's code is obtained.
type PreferredInstall string

const (
	InstallAuto   PreferredInstall = "auto"
	InstallSource PreferredInstall = "source"
	InstallDist   PreferredInstall = "dist"
)

// PlatformCheckMode controls how platform pseudo-package requirements
// (php, ext-*) are enforced against the running environment.
type PlatformCheckMode string

const (
	PlatformCheckEnabled  PlatformCheckMode = "enabled"
	PlatformCheckDisabled PlatformCheckMode = "disabled"
	PlatformCheckWarn     PlatformCheckMode = "warn"
)

// Resolved is the fully defaulted, path-expanded form of the manifest's
// config block (spec.md §6 "config block recognized options").
type Resolved struct {
	ProcessTimeout time.Duration

	PreferredInstall   PreferredInstall
	PreferredInstallFor map[string]PreferredInstall

	VendorDir string
	BinDir    string
	CacheDir  string

	CacheFilesTTL     time.Duration
	CacheFilesMaxSize int64

	GithubProtocols []string

	Platform      map[string]string
	PlatformCheck PlatformCheckMode

	SecureHTTP bool

	AllowPlugins      bool
	AllowPluginsFor   map[string]bool
	allowPluginsIsMap bool
}

// AllowPlugin reports whether name may load as a plugin, consulting the
// per-name override map before the global switch.
func (r *Resolved) AllowPlugin(name string) bool {
	if r.allowPluginsIsMap {
		if v, ok := r.AllowPluginsFor[name]; ok {
			return v
		}
		return false
	}
	return r.AllowPlugins
}

// InstallPreference looks up the install preference for a package,
// falling back to the global default.
func (r *Resolved) InstallPreference(pkg string) PreferredInstall {
	if v, ok := r.PreferredInstallFor[pkg]; ok {
		return v
	}
	return r.PreferredInstall
}

// Defaults returns the config block's documented defaults, with
// directories resolved relative to projectRoot the way vendor-dir/
// bin-dir/cache-dir are resolved against the project root in Composer.
func Defaults(projectRoot string) Resolved {
	return Resolved{
		ProcessTimeout:    300 * time.Second,
		PreferredInstall:  InstallAuto,
		VendorDir:         filepath.Join(projectRoot, "vendor"),
		BinDir:            filepath.Join(projectRoot, "vendor", "bin"),
		CacheDir:          defaultCacheDir(),
		CacheFilesTTL:     6 * 30 * 24 * time.Hour,
		CacheFilesMaxSize: 300 * 1024 * 1024,
		GithubProtocols:   []string{"https", "ssh", "git"},
		Platform:          map[string]string{},
		PlatformCheck:     PlatformCheckEnabled,
		SecureHTTP:        true,
		AllowPlugins:      true,
	}
}

// rawConfig mirrors the JSON shape of the manifest's config block
// exactly (spec.md §6), so Resolve can decode it with encoding/json
// rather than hand-walking a map[string]interface{}.
type rawConfig struct {
	ProcessTimeout      *int                       `json:"process-timeout,omitempty"`
	PreferredInstall    json.RawMessage            `json:"preferred-install,omitempty"`
	VendorDir           string                     `json:"vendor-dir,omitempty"`
	BinDir              string                     `json:"bin-dir,omitempty"`
	CacheDir            string                     `json:"cache-dir,omitempty"`
	CacheFilesTTL       *int                       `json:"cache-files-ttl,omitempty"`
	CacheFilesMaxSize   json.RawMessage            `json:"cache-files-maxsize,omitempty"`
	GithubProtocols     []string                   `json:"github-protocols,omitempty"`
	Platform            map[string]string          `json:"platform,omitempty"`
	PlatformCheck       json.RawMessage            `json:"platform-check,omitempty"`
	SecureHTTP          *bool                      `json:"secure-http,omitempty"`
	AllowPlugins        json.RawMessage            `json:"allow-plugins,omitempty"`
}

// Resolve decodes a manifest's raw "config" block (pkg/manifest.
// Manifest.Config, a map[string]interface{} straight out of
// encoding/json) into a Resolved value layered over Defaults, then
// applies the environment overrides ApplyEnv recognizes.
func Resolve(raw map[string]interface{}, projectRoot string) (*Resolved, error) {
	r := Defaults(projectRoot)
	if len(raw) == 0 {
		ApplyEnv(&r)
		return &r, nil
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, perr.Wrap(perr.KindInput, err, "config: re-encode config block")
	}
	var rc rawConfig
	if err := json.Unmarshal(encoded, &rc); err != nil {
		return nil, perr.Wrap(perr.KindInput, err, "config: decode config block")
	}

	if rc.ProcessTimeout != nil {
		r.ProcessTimeout = time.Duration(*rc.ProcessTimeout) * time.Second
	}
	if len(rc.PreferredInstall) > 0 {
		pref, byPkg, err := decodePreferredInstall(rc.PreferredInstall)
		if err != nil {
			return nil, perr.WithField(err, "config.preferred-install")
		}
		if pref != "" {
			r.PreferredInstall = pref
		}
		if byPkg != nil {
			r.PreferredInstallFor = byPkg
		}
	}
	if rc.VendorDir != "" {
		r.VendorDir = resolvePath(projectRoot, rc.VendorDir)
	}
	if rc.BinDir != "" {
		r.BinDir = resolvePath(projectRoot, rc.BinDir)
	}
	if rc.CacheDir != "" {
		r.CacheDir = resolvePath(projectRoot, rc.CacheDir)
	}
	if rc.CacheFilesTTL != nil {
		r.CacheFilesTTL = time.Duration(*rc.CacheFilesTTL) * time.Second
	}
	if len(rc.CacheFilesMaxSize) > 0 {
		size, err := decodeMaxSize(rc.CacheFilesMaxSize)
		if err != nil {
			return nil, perr.WithField(err, "config.cache-files-maxsize")
		}
		r.CacheFilesMaxSize = size
	}
	if len(rc.GithubProtocols) > 0 {
		r.GithubProtocols = rc.GithubProtocols
	}
	if len(rc.Platform) > 0 {
		r.Platform = rc.Platform
	}
	if len(rc.PlatformCheck) > 0 {
		mode, err := decodePlatformCheck(rc.PlatformCheck)
		if err != nil {
			return nil, perr.WithField(err, "config.platform-check")
		}
		r.PlatformCheck = mode
	}
	if rc.SecureHTTP != nil {
		r.SecureHTTP = *rc.SecureHTTP
	}
	if len(rc.AllowPlugins) > 0 {
		if err := decodeAllowPlugins(rc.AllowPlugins, &r); err != nil {
			return nil, perr.WithField(err, "config.allow-plugins")
		}
	}

	ApplyEnv(&r)
	return &r, nil
}

func resolvePath(projectRoot, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(projectRoot, p)
}

// decodePreferredInstall handles both the global-string and
// per-package-map forms Composer allows for preferred-install.
func decodePreferredInstall(raw json.RawMessage) (PreferredInstall, map[string]PreferredInstall, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return PreferredInstall(single), nil, nil
	}
	var byPkg map[string]string
	if err := json.Unmarshal(raw, &byPkg); err != nil {
		return "", nil, perr.New(perr.KindInput, "config: preferred-install must be a string or an object")
	}
	out := make(map[string]PreferredInstall, len(byPkg))
	for k, v := range byPkg {
		out[k] = PreferredInstall(v)
	}
	return "", out, nil
}

// decodeMaxSize accepts either a bare integer (bytes) or Composer's
// suffixed form ("300M", "1G", "512K").
func decodeMaxSize(raw json.RawMessage) (int64, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, perr.New(perr.KindInput, "config: cache-files-maxsize must be a number or a suffixed size string")
	}
	return parseSizeSuffix(s)
}

func parseSizeSuffix(s string) (int64, error) {
	if s == "" {
		return 0, perr.New(perr.KindInput, "config: empty cache-files-maxsize")
	}
	unit := int64(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		unit = 1024
		s = s[:len(s)-1]
	case 'm', 'M':
		unit = 1024 * 1024
		s = s[:len(s)-1]
	case 'g', 'G':
		unit = 1024 * 1024 * 1024
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, perr.Wrap(perr.KindInput, err, "config: invalid cache-files-maxsize %q", s)
	}
	return n * unit, nil
}

func decodePlatformCheck(raw json.RawMessage) (PlatformCheckMode, error) {
	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		if asBool {
			return PlatformCheckEnabled, nil
		}
		return PlatformCheckDisabled, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", perr.New(perr.KindInput, "config: platform-check must be a bool or one of enabled/disabled/warn")
	}
	switch PlatformCheckMode(s) {
	case PlatformCheckEnabled, PlatformCheckDisabled, PlatformCheckWarn:
		return PlatformCheckMode(s), nil
	default:
		return "", perr.New(perr.KindInput, "config: unrecognized platform-check value %q", s)
	}
}

func decodeAllowPlugins(raw json.RawMessage, r *Resolved) error {
	var asBool bool
	if err := json.Unmarshal(raw, &asBool); err == nil {
		r.AllowPlugins = asBool
		r.allowPluginsIsMap = false
		return nil
	}
	var byName map[string]bool
	if err := json.Unmarshal(raw, &byName); err != nil {
		return perr.New(perr.KindInput, "config: allow-plugins must be a bool or an object of name -> bool")
	}
	r.AllowPluginsFor = byName
	r.allowPluginsIsMap = true
	return nil
}
