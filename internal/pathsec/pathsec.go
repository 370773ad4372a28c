// Package pathsec validates S3 bucket/object names and turns a
// (bucket, key) pair into a filesystem path that is provably contained
// inside the configured storage root. It never touches the filesystem:
// containment is decided lexically, the same way rclone's local backend
// resolves remotes without ever calling filepath.EvalSymlinks on a path
// it is about to trust.
package pathsec

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/fritsstegmann/fily/internal/apierror"
)

const maxKeyBytes = 1024

// ValidateBucketName enforces the S3 bucket-naming rules from spec.md §3/§4.1:
// length 3..=63, [a-z0-9.-], alphanumeric first/last, no "..", not IPv4-shaped.
func ValidateBucketName(name string) error {
	if err := checkBucketName(name); err != nil {
		return apierror.New(apierror.KindInvalidBucketName, name, err.Error())
	}
	return nil
}

func checkBucketName(name string) error {
	if len(name) < 3 || len(name) > 63 {
		return errf("bucket name must be 3-63 characters")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '-':
		default:
			return errf("bucket name contains invalid character %q", r)
		}
	}
	first, last := name[0], name[len(name)-1]
	if !isAlnum(first) || !isAlnum(last) {
		return errf("bucket name must start and end with a letter or digit")
	}
	if strings.Contains(name, "..") {
		return errf("bucket name must not contain adjacent dots")
	}
	if net.ParseIP(name) != nil {
		return errf("bucket name must not be formatted as an IP address")
	}
	return nil
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

// ValidateObjectKey applies the key-sanitization rules of spec.md §4.1.
func ValidateObjectKey(key string) error {
	if key == "" {
		return apierror.New(apierror.KindInvalidObjectName, key, "object key must not be empty")
	}
	if len(key) > maxKeyBytes {
		return apierror.New(apierror.KindInvalidObjectName, key, "object key exceeds 1024 bytes")
	}
	if strings.ContainsRune(key, 0) {
		return apierror.New(apierror.KindInvalidObjectName, key, "object key contains a NUL byte")
	}
	if strings.HasPrefix(key, "/") || strings.HasPrefix(key, "\\") {
		return apierror.New(apierror.KindInvalidObjectName, key, "object key must not start with a path separator")
	}
	if strings.Contains(key, "\\") {
		return apierror.New(apierror.KindInvalidObjectName, key, "object key must not contain a Windows path separator")
	}
	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			return apierror.New(apierror.KindInvalidObjectName, key, "object key contains a control character")
		}
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "." || segment == ".." {
			return apierror.New(apierror.KindInvalidObjectName, key, "object key must not contain a \".\" or \"..\" segment")
		}
	}
	return nil
}

// ConstructSafePath joins root/bucket/key and proves the result is a lexical
// descendant of root/bucket before returning it. root and bucket are
// assumed already validated by the caller (CreateBucket/bucket existence
// checks happen one layer up); key is validated here.
func ConstructSafePath(root, bucket, key string) (string, error) {
	if err := ValidateBucketName(bucket); err != nil {
		return "", err
	}
	if err := ValidateObjectKey(key); err != nil {
		return "", err
	}

	bucketRoot := filepath.Clean(filepath.Join(root, bucket))
	candidate := filepath.Clean(filepath.Join(bucketRoot, key))

	if candidate != bucketRoot && !strings.HasPrefix(candidate, bucketRoot+string(filepath.Separator)) {
		return "", apierror.New(apierror.KindInvalidObjectName, key, "object key escapes the bucket root")
	}
	return candidate, nil
}

// BucketPath joins root/bucket without a key, for bucket-level operations.
func BucketPath(root, bucket string) (string, error) {
	if err := ValidateBucketName(bucket); err != nil {
		return "", err
	}
	return filepath.Clean(filepath.Join(root, bucket)), nil
}

func errf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
