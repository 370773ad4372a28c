// Package metadata implements the sidecar metadata store (C2): one JSON
// file per object, living alongside the payload under a bucket's
// .fily-metadata/ directory. It is grounded on rclone's pattern of a
// small per-object value type (backend/local's Object) plus an atomic
// temp-then-rename writer, the same discipline backend/local uses for
// payload writes.
package metadata

import (
	"crypto/md5" //nolint:gosec // MD5 is the mandated ETag algorithm, not used for security.
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fritsstegmann/fily/internal/apierror"
	"github.com/fritsstegmann/fily/internal/pathsec"
	"github.com/gabriel-vasile/mimetype"
)

// MetadataDirName is the sidecar directory rooted at <root>/<bucket>/.
const MetadataDirName = ".fily-metadata"

// Record is the JSON sidecar document for one object, per spec.md §3.
type Record struct {
	ContentType   string            `json:"content_type"`
	ContentLength int64             `json:"content_length"`
	ETag          string            `json:"etag"`
	LastModified  time.Time         `json:"last_modified"`
	UserMetadata  map[string]string `json:"user_metadata"`
	Encrypted     bool              `json:"encrypted"`
}

// Store is the sidecar metadata store for a single storage root.
type Store struct {
	root string
}

// New returns a Store rooted at root (the same root object payloads live
// under).
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) sidecarPath(bucket, key string) (string, error) {
	bucketRoot, err := pathsec.BucketPath(s.root, bucket)
	if err != nil {
		return "", err
	}
	if err := pathsec.ValidateObjectKey(key); err != nil {
		return "", err
	}
	filename := pathsec.MetadataFilename(key)
	return filepath.Join(bucketRoot, MetadataDirName, filename), nil
}

// Save atomically writes rec as the sidecar for (bucket, key): write to a
// temp file in the same directory, fsync, rename. This mirrors the
// temp-then-rename discipline backend/local applies to payload writes, so
// a crash mid-write can never leave a half-written sidecar in place.
func (s *Store) Save(bucket, key string, rec Record) error {
	path, err := s.sidecarPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return apierror.Internal(bucket+"/"+key, fmt.Errorf("create metadata directory: %w", err))
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return apierror.Internal(bucket+"/"+key, fmt.Errorf("marshal metadata: %w", err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-meta-*")
	if err != nil {
		return apierror.Internal(bucket+"/"+key, fmt.Errorf("create temp metadata file: %w", err))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apierror.Internal(bucket+"/"+key, fmt.Errorf("write temp metadata file: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apierror.Internal(bucket+"/"+key, fmt.Errorf("sync temp metadata file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return apierror.Internal(bucket+"/"+key, fmt.Errorf("close temp metadata file: %w", err))
	}
	if err := os.Rename(tmpName, path); err != nil {
		return apierror.Internal(bucket+"/"+key, fmt.Errorf("rename metadata file into place: %w", err))
	}
	return nil
}

// Load returns the sidecar for (bucket, key), or (nil, nil) if it is
// absent. Malformed JSON is an InternalError per spec.md §4.2 — it is
// never silently ignored, since ETag and encryption state depend on it.
func (s *Store) Load(bucket, key string) (*Record, error) {
	path, err := s.sidecarPath(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, apierror.Internal(bucket+"/"+key, fmt.Errorf("read metadata file: %w", err))
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apierror.Internal(bucket+"/"+key, fmt.Errorf("parse metadata file: %w", err))
	}
	return &rec, nil
}

// Delete removes the sidecar for (bucket, key). Its absence is not an
// error: DELETE must be idempotent per spec.md §4.2/§8.
func (s *Store) Delete(bucket, key string) error {
	path, err := s.sidecarPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apierror.Internal(bucket+"/"+key, fmt.Errorf("remove metadata file: %w", err))
	}
	return nil
}

// IsEmptyOrTombstones reports whether a bucket's metadata directory
// contains nothing (or has never been created), allowing DeleteBucket to
// proceed per spec.md §3's "sidecar metadata directory must also be empty
// ... to be removed with it".
func (s *Store) IsEmptyOrTombstones(bucket string) (bool, error) {
	bucketRoot, err := pathsec.BucketPath(s.root, bucket)
	if err != nil {
		return false, err
	}
	dir := filepath.Join(bucketRoot, MetadataDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, apierror.Internal(bucket, fmt.Errorf("list metadata directory: %w", err))
	}
	return len(entries) == 0, nil
}

// RemoveBucketMetadataDir removes the whole .fily-metadata/ directory for
// a bucket, as the final step of DeleteBucket.
func (s *Store) RemoveBucketMetadataDir(bucket string) error {
	bucketRoot, err := pathsec.BucketPath(s.root, bucket)
	if err != nil {
		return err
	}
	dir := filepath.Join(bucketRoot, MetadataDirName)
	if err := os.RemoveAll(dir); err != nil {
		return apierror.Internal(bucket, fmt.Errorf("remove metadata directory: %w", err))
	}
	return nil
}

// extensionMIME is the table-driven extension guess from spec.md §4.2,
// covering the extensions common S3 tooling exercises.
var extensionMIME = map[string]string{
	".txt":  "text/plain",
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".xml":  "application/xml",
	".csv":  "text/csv",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".tar":  "application/x-tar",
	".mp4":  "video/mp4",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".bin":  "application/octet-stream",
}

const defaultContentType = "application/octet-stream"

// sniffBytes bounds how much of the payload GuessContentType will sniff
// through mimetype.Detect when both the Content-Type header and the
// extension table come up empty.
const sniffBytes = 3072

// GuessContentType resolves a PUT's effective content type: the supplied
// header wins; otherwise the extension table; otherwise — only when both
// of those are silent — a content sniff via mimetype.Detect over the
// first sniffBytes of payload, matching rclone's own use of
// mimetype.Detect in backend/compress; finally application/octet-stream.
func GuessContentType(headerContentType, key string, payload []byte) string {
	if headerContentType != "" {
		return headerContentType
	}
	ext := strings.ToLower(filepath.Ext(key))
	if ct, ok := extensionMIME[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	if len(payload) > 0 {
		n := sniffBytes
		if n > len(payload) {
			n = len(payload)
		}
		detected := mimetype.Detect(payload[:n])
		if detected != nil && detected.String() != "" && detected.String() != "application/octet-stream" {
			return detected.String()
		}
	}
	return defaultContentType
}

// ComputeETag returns the quoted lowercase-hex MD5 of a plaintext payload,
// the ETag value spec.md §3 defines.
func ComputeETag(payload []byte) string {
	sum := md5.Sum(payload)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}
