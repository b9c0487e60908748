package orchestrator

import (
	"context"
	"os"
	"path/filepath"

	"github.com/libretto-pm/libretto/pkg/config"
	"github.com/libretto-pm/libretto/pkg/download"
	"github.com/libretto-pm/libretto/pkg/extract"
	"github.com/libretto-pm/libretto/pkg/manifest"
	"github.com/libretto-pm/libretto/pkg/perr"
	"github.com/libretto-pm/libretto/pkg/resolution"
)

// materialize places every selected package on disk, per spec.md §4.K
// step 5: "for each selected package, hand a download artifact [...] to
// the download pool; on completion call the extractor or VCS driver."
//
// Packages sourced from dist go through the shared download.Pool and
// are unpacked with the extractor; packages sourced from VCS (or whose
// install-preference picks source over dist) are checked out directly
// by a vcs.Driver. Platform pseudo-packages ("php", "ext-json", ...)
// carry no artifact and are skipped.
func (o *Orchestrator) materialize(ctx context.Context, res *resolution.Resolution) ([]download.Result, error) {
	vendorDir := o.Config.VendorDir

	var distTasks []download.Task
	var distPackages []manifest.PackageVersion
	var vcsPackages []manifest.PackageVersion

	for _, id := range res.SortedPackageIDs() {
		if manifest.IsPlatform(id.String()) {
			continue
		}
		pv := res.Selected[id]
		if useSource(o.Config, pv) {
			vcsPackages = append(vcsPackages, pv)
			continue
		}
		if pv.Dist == nil {
			if pv.Source != nil {
				vcsPackages = append(vcsPackages, pv)
				continue
			}
			return nil, perr.New(perr.KindInput, "orchestrator: %s has neither a dist nor a source to materialize", id)
		}
		distPackages = append(distPackages, pv)
		distTasks = append(distTasks, distTaskFor(o.Config, pv))
	}

	var results []download.Result
	if len(distTasks) > 0 {
		if o.Downloads == nil {
			return nil, perr.New(perr.KindInput, "orchestrator: no download pool configured")
		}
		var err error
		results, err = o.Downloads.Download(ctx, distTasks)
		if err != nil {
			return results, perr.Wrap(perr.KindNetwork, err, "orchestrator: download selected packages")
		}
		for i, r := range results {
			if r.Err != nil {
				continue
			}
			pv := distPackages[i]
			dest := vendorPath(vendorDir, pv.ID)
			if _, err := extract.Extract(r.Task.Dest, dest, extract.Options{PreservePermissions: true}); err != nil {
				results[i].Err = perr.Wrap(perr.KindIntegrity, err, "orchestrator: extract %s", pv.ID)
			}
		}
	}

	for _, pv := range vcsPackages {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		if o.VCS == nil {
			return results, perr.New(perr.KindInput, "orchestrator: %s requires a VCS checkout but no VCS factory is configured", pv.ID)
		}
		driver, err := o.VCS(pv.Source.Type)
		if err != nil {
			return results, perr.Wrap(perr.KindInput, err, "orchestrator: resolve VCS driver for %s", pv.ID)
		}
		dest := vendorPath(vendorDir, pv.ID)
		if _, statErr := os.Stat(dest); statErr == nil {
			err = driver.Update(ctx, dest, pv.Source.Reference)
		} else {
			err = driver.Clone(ctx, pv.Source.URL, dest, pv.Source.Reference)
		}
		if err != nil {
			return results, perr.Wrap(perr.KindNetwork, err, "orchestrator: checkout %s", pv.ID)
		}
	}

	return results, nil
}

// useSource reports whether pv should be checked out from its VCS
// source rather than downloaded as a dist archive, per the config
// block's preferred-install setting (spec.md §6).
func useSource(cfg *config.Resolved, pv manifest.PackageVersion) bool {
	if cfg == nil {
		return pv.Dist == nil && pv.Source != nil
	}
	switch cfg.InstallPreference(pv.ID.String()) {
	case config.InstallSource:
		return pv.Source != nil
	case config.InstallDist:
		return false
	default:
		return pv.Dist == nil && pv.Source != nil
	}
}

func distTaskFor(cfg *config.Resolved, pv manifest.PackageVersion) download.Task {
	stagingDir := filepath.Join(cfg.CacheDir, "dist")
	task := download.Task{
		Package: pv.ID,
		URL:     pv.Dist.URL,
		Dest:    filepath.Join(stagingDir, pv.ID.Vendor+"-"+pv.ID.Name+"-"+pv.Version.String()+distExt(pv.Dist.Type)),
	}
	if pv.Dist.SHA1 != "" {
		task.Expected = map[string]string{"sha1": pv.Dist.SHA1}
	}
	return task
}

func distExt(distType string) string {
	switch distType {
	case "zip":
		return ".zip"
	case "tar", "xz":
		return ".tar.xz"
	case "rar":
		return ".rar"
	default:
		return ".zip"
	}
}

func vendorPath(vendorDir string, id manifest.PackageID) string {
	return filepath.Join(vendorDir, id.Vendor, id.Name)
}
