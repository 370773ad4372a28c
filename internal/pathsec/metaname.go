package pathsec

import (
	"net/url"
	"strings"
)

// MetadataFilename turns a sanitized object key into a flat, reversible
// filename safe to place directly inside a bucket's .fily-metadata/
// directory: every byte outside [A-Za-z0-9._-] — including "/", which
// becomes the literal escape sequence "%2F" — is percent-encoded. The
// transform is 1-to-1: percent-encoding is injective, and "%" itself is
// always escaped (to "%25"), so no encoded key can collide with another.
func MetadataFilename(key string) string {
	var b strings.Builder
	b.Grow(len(key) + 8)
	for i := 0; i < len(key); i++ {
		c := key[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteString(url.QueryEscape(string(c)))
	}
	return b.String() + ".json"
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z':
	case c >= 'a' && c <= 'z':
	case c >= '0' && c <= '9':
	case c == '.' || c == '_' || c == '-':
	default:
		return false
	}
	return true
}
