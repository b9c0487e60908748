// Package manifest implements the Composer-compatible manifest.json data
// model: PackageId, package version records, the root Manifest, and the
// Resolution the solver produces from them.
//
// Grounded on golang-dep/manifest.go's raw-JSON-to-value-type split
// (rawManifest -> Manifest) and on the Packagist wire shapes observed in
// MaxSukhanov-git_pkgs_registries/internal/packagist/packagist.go.
package manifest

import (
	"fmt"
	"regexp"
	"strings"
)

// PackageID is a case-insensitive "vendor/name" pair. Vendor and name
// each match [a-z0-9]([_.-]?[a-z0-9]+)*: a leading, trailing or doubled
// '.', '_' or '-' is rejected.
type PackageID struct {
	Vendor, Name string
}

var packageNameRE = regexp.MustCompile(`^[a-z0-9]([_.-]?[a-z0-9]+)*$`)

// ParsePackageID validates and normalizes a "vendor/name" string to its
// canonical lowercase form. A bare name with no "/" is only accepted
// when it names a platform pseudo-package ("php", "ext-json", ...); it
// is then stored with an empty Vendor so String() renders it back
// without a vendor segment, keeping it recognizable to IsPlatform.
func ParsePackageID(s string) (PackageID, error) {
	if !strings.Contains(s, "/") {
		if IsPlatform(s) {
			return PackageID{Name: strings.ToLower(s)}, nil
		}
		return PackageID{}, fmt.Errorf("manifest: %q is not a valid vendor/name package id", s)
	}
	parts := strings.SplitN(s, "/", 2)
	vendor, name := strings.ToLower(parts[0]), strings.ToLower(parts[1])
	if !packageNameRE.MatchString(vendor) || !packageNameRE.MatchString(name) {
		return PackageID{}, fmt.Errorf("manifest: %q is not a valid vendor/name package id", s)
	}
	return PackageID{Vendor: vendor, Name: name}, nil
}

// String renders the canonical "vendor/name" form, or the bare platform
// name when Vendor is empty.
func (p PackageID) String() string {
	if p.Vendor == "" {
		return p.Name
	}
	return p.Vendor + "/" + p.Name
}

// MarshalText implements encoding.TextMarshaler so PackageID can be used
// as a JSON object key.
func (p PackageID) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PackageID) UnmarshalText(b []byte) error {
	id, err := ParsePackageID(string(b))
	if err != nil {
		return err
	}
	*p = id
	return nil
}

var platformPrefixes = []string{"php", "ext-", "lib-", "composer-"}

// IsPlatform reports whether name (a bare requirement name, not
// necessarily a valid PackageID) refers to a platform pseudo-package:
// the runtime itself, or one of its extensions/libs/composer-plugin-api
// capabilities. Platform pseudo-packages are never resolved from a
// repository (spec §3).
func IsPlatform(name string) bool {
	name = strings.ToLower(name)
	if name == "php" || strings.HasPrefix(name, "php-") {
		return true
	}
	for _, p := range platformPrefixes[1:] {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
