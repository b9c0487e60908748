package fetch

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/libretto-pm/libretto/pkg/cache"
	"github.com/libretto-pm/libretto/pkg/manifest"
)

// fetchOne resolves one package's Entry, consulting the metadata cache
// before falling back to the registry fetcher. Only a Fresh entry is
// served from the cache; a miss, an Expired entry, and a
// StaleRevalidatable entry all trigger a full live fetch, since neither
// Driver nor the registry Actor sends ETag/If-None-Match validators.
func (s *session) fetchOne(ctx context.Context, id manifest.PackageID) (*manifest.Entry, error) {
	key := cache.Key("package-metadata", id.String())

	if s.d.Cache != nil {
		if lookup := s.d.Cache.Get(s.now, key); lookup.Found && lookup.Freshness == cache.Fresh {
			entry, err := decodeEntry(lookup.Entry.Value)
			if err == nil {
				return entry, nil
			}
			// A corrupt cache entry falls through to a live fetch rather
			// than failing the whole package.
		}
	}

	entry, err := s.d.Fetcher.FetchEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.d.Cache != nil {
		if encoded, encErr := json.Marshal(entry); encErr == nil {
			_ = s.d.Cache.Put(key, &cache.Entry{
				Tag:      cache.TagPackageMetadata,
				Value:    encoded,
				StoredAt: s.now,
				TTL:      s.d.CacheTTL,
			})
		}
	}
	return entry, nil
}

func decodeEntry(raw []byte) (*manifest.Entry, error) {
	var entry manifest.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, errors.Wrap(err, "fetch: decode cached entry")
	}
	return &entry, nil
}
