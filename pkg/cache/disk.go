package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// diskTier is the on-disk tier: one bbolt file, one top-level bucket
// per Tag, entries keyed by their content-hash Key. bbolt's own
// mmap+write-ahead-log commit already gives every Update transaction
// the fsync-before-return atomicity spec.md §4.C asks for, the same
// guarantee golang-dep's boltCache leans on.
type diskTier struct {
	db *bolt.DB
}

func newDiskTier(path string) (*diskTier, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "cache: create directory for %s", path)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "cache: open bolt db %s", path)
	}
	return &diskTier{db: db}, nil
}

func (d *diskTier) close() error {
	return d.db.Close()
}

// diskRecord is the on-disk encoding of an Entry; it carries the key
// alongside the value. Each tag has its own bucket, so invalidateTag
// drops that bucket whole without reading any record.
type diskRecord struct {
	Key       string
	Tag       Tag
	Value     []byte
	StoredAt  int64
	TTL       int64
	Validator string
}

func bucketName(tag Tag) []byte { return []byte(tag.String()) }

func (d *diskTier) get(key string) (*Entry, bool) {
	var rec *diskRecord
	_ = d.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			if rec != nil {
				return nil
			}
			v := b.Get([]byte(key))
			if v == nil {
				return nil
			}
			var r diskRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return nil
			}
			rec = &r
			return nil
		})
	})
	if rec == nil {
		return nil, false
	}
	return &Entry{
		Tag:       rec.Tag,
		Value:     rec.Value,
		StoredAt:  time.Unix(0, rec.StoredAt),
		TTL:       time.Duration(rec.TTL),
		Validator: rec.Validator,
	}, true
}

func (d *diskTier) put(key string, e *Entry) error {
	rec := diskRecord{
		Key:       key,
		Tag:       e.Tag,
		Value:     e.Value,
		StoredAt:  e.StoredAt.UnixNano(),
		TTL:       int64(e.TTL),
		Validator: e.Validator,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "cache: encode entry")
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(e.Tag))
		if err != nil {
			return errors.Wrap(err, "cache: create bucket")
		}
		return b.Put([]byte(key), data)
	})
}

func (d *diskTier) invalidateTag(tag Tag) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketName(tag)) == nil {
			return nil
		}
		return tx.DeleteBucket(bucketName(tag))
	})
}
