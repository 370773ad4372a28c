// Package s3api implements the S3 HTTP operation handlers (C5), wiring
// internal/pathsec (C1), internal/metadata (C2), internal/cryptoengine
// (C3) and internal/sigv4 (C4) together. The atomic temp-then-rename
// payload write and EINTR-retry-once discipline are grounded on
// backend/local/local.go's own file-writing path (Object.Update /
// writerAt, which writes to a temp file and renames into place, and
// checks for Lstat-visible symlinks before following a destination).
package s3api

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fritsstegmann/fily/internal/apierror"
	"github.com/fritsstegmann/fily/internal/cryptoengine"
	"github.com/fritsstegmann/fily/internal/metadata"
	"github.com/fritsstegmann/fily/internal/pathsec"
)

// ObjectStore is the filesystem-backed object layer used by the S3
// handlers. It owns no locks: serialization is per-path and provided by
// the OS, per spec.md §5.
type ObjectStore struct {
	root   string
	meta   *metadata.Store
	crypto *cryptoengine.Engine // nil when encryption is disabled
	nowFn  func() time.Time
}

// NewObjectStore builds a store rooted at root. crypto may be nil, in
// which case objects are stored and served as plaintext.
func NewObjectStore(root string, meta *metadata.Store, crypto *cryptoengine.Engine) *ObjectStore {
	return &ObjectStore{root: root, meta: meta, crypto: crypto, nowFn: time.Now}
}

// BucketExists reports whether bucket's directory is present.
func (s *ObjectStore) BucketExists(bucket string) (bool, error) {
	path, err := pathsec.BucketPath(s.root, bucket)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// CreateBucket makes the bucket directory with mode 0700. Returns
// BucketAlreadyExists if the directory is already present.
func (s *ObjectStore) CreateBucket(bucket string) *apierror.Error {
	if err := pathsec.ValidateBucketName(bucket); err != nil {
		return asAPIError(err)
	}
	path, err := pathsec.BucketPath(s.root, bucket)
	if err != nil {
		return asAPIError(err)
	}
	if _, err := os.Stat(path); err == nil {
		return apierror.New(apierror.KindBucketAlreadyExists, bucket, "bucket already exists")
	} else if !errors.Is(err, os.ErrNotExist) {
		return apierror.Internal(bucket, err)
	}
	if err := retryEINTR(func() error { return os.MkdirAll(path, 0o700) }); err != nil {
		return apierror.Internal(bucket, err)
	}
	return nil
}

// DeleteBucket removes bucket's directory, refusing if it contains any
// non-hidden entry. The sidecar metadata directory is removed as part of
// the bucket.
func (s *ObjectStore) DeleteBucket(bucket string) *apierror.Error {
	exists, err := s.BucketExists(bucket)
	if err != nil {
		return apierror.Internal(bucket, err)
	}
	if !exists {
		return apierror.New(apierror.KindNoSuchBucket, bucket, "no such bucket")
	}

	path, _ := pathsec.BucketPath(s.root, bucket)
	entries, err := os.ReadDir(path)
	if err != nil {
		return apierror.Internal(bucket, err)
	}
	for _, e := range entries {
		if e.Name() == metadata.MetadataDirName {
			continue
		}
		if len(e.Name()) > 0 && e.Name()[0] == '.' {
			continue
		}
		return apierror.New(apierror.KindBucketNotEmpty, bucket, "bucket is not empty")
	}

	metaEmpty, err := s.meta.IsEmptyOrTombstones(bucket)
	if err != nil {
		return apierror.Internal(bucket, err)
	}
	if !metaEmpty {
		return apierror.New(apierror.KindBucketNotEmpty, bucket, "bucket metadata is not empty")
	}

	if err := s.meta.RemoveBucketMetadataDir(bucket); err != nil {
		return apierror.Internal(bucket, err)
	}
	if err := retryEINTR(func() error { return os.Remove(path) }); err != nil {
		return apierror.Internal(bucket, err)
	}
	return nil
}

// ListBuckets enumerates immediate, non-hidden subdirectories of root.
func (s *ObjectStore) ListBuckets() ([]BucketInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var buckets []BucketInfo
	for _, e := range entries {
		if !e.IsDir() || len(e.Name()) == 0 || e.Name()[0] == '.' {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		buckets = append(buckets, BucketInfo{Name: e.Name(), CreationDate: info.ModTime().UTC()})
	}
	return buckets, nil
}

// BucketInfo is a directory-derived summary for ListBuckets.
type BucketInfo struct {
	Name         string
	CreationDate time.Time
}

// PutObject validates (bucket, key), writes the payload (encrypting it
// first if a crypto engine is configured) atomically, and writes the
// metadata sidecar last, per spec.md §4.5/§5.
func (s *ObjectStore) PutObject(bucket, key string, plaintext []byte, contentType string, userMeta map[string]string) (metadata.Record, *apierror.Error) {
	if err := pathsec.ValidateObjectKey(key); err != nil {
		return metadata.Record{}, asAPIError(err)
	}
	exists, err := s.BucketExists(bucket)
	if err != nil {
		return metadata.Record{}, apierror.Internal(bucket, err)
	}
	if !exists {
		return metadata.Record{}, apierror.New(apierror.KindNoSuchBucket, bucket, "no such bucket")
	}

	path, err := pathsec.ConstructSafePath(s.root, bucket, key)
	if err != nil {
		return metadata.Record{}, asAPIError(err)
	}

	etag := metadata.ComputeETag(plaintext)
	resolvedContentType := metadata.GuessContentType(contentType, key, plaintext)

	onDisk := plaintext
	encrypted := false
	if s.crypto != nil {
		ad := cryptoengine.AssociatedData(bucket, key)
		blob, sealErr := s.crypto.Seal(plaintext, ad)
		if sealErr != nil {
			return metadata.Record{}, apierror.Internal(key, sealErr)
		}
		onDisk = blob
		encrypted = true
	}

	if err := writeFileAtomic(path, onDisk); err != nil {
		return metadata.Record{}, apierror.Internal(key, err)
	}

	rec := metadata.Record{
		ContentType:   resolvedContentType,
		ContentLength: int64(len(plaintext)),
		ETag:          etag,
		LastModified:  s.nowFn().UTC(),
		UserMetadata:  userMeta,
		Encrypted:     encrypted,
	}
	if err := s.meta.Save(bucket, key, rec); err != nil {
		return metadata.Record{}, apierror.Internal(key, err)
	}
	return rec, nil
}

// GetObject reads and, if necessary, decrypts an object's payload,
// synthesizing default metadata if the sidecar is absent (spec.md §4.2
// / Open Question 1).
func (s *ObjectStore) GetObject(bucket, key string) ([]byte, metadata.Record, *apierror.Error) {
	if err := pathsec.ValidateObjectKey(key); err != nil {
		return nil, metadata.Record{}, asAPIError(err)
	}
	exists, err := s.BucketExists(bucket)
	if err != nil {
		return nil, metadata.Record{}, apierror.Internal(bucket, err)
	}
	if !exists {
		return nil, metadata.Record{}, apierror.New(apierror.KindNoSuchBucket, bucket, "no such bucket")
	}

	path, err := pathsec.ConstructSafePath(s.root, bucket, key)
	if err != nil {
		return nil, metadata.Record{}, asAPIError(err)
	}

	raw, err := readFileRetryEINTR(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, metadata.Record{}, apierror.New(apierror.KindNoSuchKey, key, "no such key")
		}
		return nil, metadata.Record{}, apierror.Internal(key, err)
	}

	rec, err := s.meta.Load(bucket, key)
	if err != nil {
		return nil, metadata.Record{}, apierror.Internal(key, err)
	}
	if rec == nil {
		lastModified := s.nowFn().UTC()
		if info, statErr := os.Stat(path); statErr == nil {
			lastModified = info.ModTime().UTC()
		}
		synthesized := metadata.Record{
			ContentType:   metadata.GuessContentType("", key, raw),
			ContentLength: int64(len(raw)),
			ETag:          metadata.ComputeETag(raw),
			LastModified:  lastModified,
			Encrypted:     false,
		}
		rec = &synthesized
	}

	plaintext := raw
	if rec.Encrypted {
		if s.crypto == nil {
			return nil, metadata.Record{}, apierror.Internal(key, fmt.Errorf("object is encrypted but no master key is configured"))
		}
		ad := cryptoengine.AssociatedData(bucket, key)
		plaintext, err = s.crypto.Open(raw, ad)
		if err != nil {
			return nil, metadata.Record{}, asAPIError(err)
		}
	}

	return plaintext, *rec, nil
}

// DeleteObject removes an object's payload and sidecar. Idempotent:
// deleting an absent object is not an error.
func (s *ObjectStore) DeleteObject(bucket, key string) *apierror.Error {
	if err := pathsec.ValidateObjectKey(key); err != nil {
		return asAPIError(err)
	}
	exists, err := s.BucketExists(bucket)
	if err != nil {
		return apierror.Internal(bucket, err)
	}
	if !exists {
		return apierror.New(apierror.KindNoSuchBucket, bucket, "no such bucket")
	}

	path, err := pathsec.ConstructSafePath(s.root, bucket, key)
	if err != nil {
		return asAPIError(err)
	}

	if err := retryEINTR(func() error { return os.Remove(path) }); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apierror.Internal(key, err)
	}
	if err := s.meta.Delete(bucket, key); err != nil {
		return apierror.Internal(key, err)
	}
	return nil
}

// writeFileAtomic writes data to a temp sibling of path, fsyncs it, and
// renames it into place — matching backend/local's own write-then-rename
// object update path. Intermediate directories are created as needed,
// per spec.md §3's "intermediate directories are created on write".
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".fily-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func readFileRetryEINTR(path string) ([]byte, error) {
	var data []byte
	err := retryEINTR(func() error {
		var readErr error
		data, readErr = os.ReadFile(path)
		return readErr
	})
	return data, err
}

// retryEINTR retries op once if it fails with EINTR, per spec.md §7's
// "Disk I/O error: Retry once on EINTR" row.
func retryEINTR(op func() error) error {
	err := op()
	if errors.Is(err, syscall.EINTR) {
		err = op()
	}
	return err
}

// asAPIError recovers the *apierror.Error pathsec already constructed,
// falling back to a generic InvalidObjectName wrap if err is some other
// error type (should not happen given pathsec's contract).
func asAPIError(err error) *apierror.Error {
	if apiErr, ok := apierror.As(err); ok {
		return apiErr
	}
	return apierror.New(apierror.KindInvalidObjectName, "", err.Error())
}
