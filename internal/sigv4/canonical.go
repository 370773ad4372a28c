package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"net/url"
	"sort"
	"strings"
)

// service and terminator are fixed by the SigV4 spec for S3.
const (
	service    = "s3"
	terminator = "aws4_request"
	algorithm  = "AWS4-HMAC-SHA256"
)

// hmacSHA256 is the single HMAC primitive the whole signing-key chain and
// the final signature computation are built from.
func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// deriveSigningKey computes kSigning = HMAC(HMAC(HMAC(HMAC("AWS4"+secret,
// date), region), "s3"), "aws4_request") per spec.md §4.4's GLOSSARY entry.
func deriveSigningKey(secret, date, region string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(date))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte(terminator))
}

// credentialScope builds the "date/region/s3/aws4_request" string bound to
// a signature.
func credentialScope(date, region string) string {
	return strings.Join([]string{date, region, service, terminator}, "/")
}

// canonicalURI percent-encodes a path per RFC 3986 once, preserving "/",
// with an empty path rendered as "/".
func canonicalURI(path string) string {
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = uriEncode(seg, false)
	}
	return strings.Join(segments, "/")
}

// uriEncode percent-encodes a single path segment (encodeSlash=false) or a
// query key/value (encodeSlash=true) per the SigV4 spec's encoding rules:
// unreserved characters (A-Z a-z 0-9 - _ . ~) pass through unescaped,
// everything else is escaped as %XX using uppercase hex digits.
func uriEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == '-' || c == '_' || c == '.' || c == '~':
			b.WriteByte(c)
		case c == '/' && !encodeSlash:
			b.WriteByte(c)
		default:
			b.WriteString("%")
			b.WriteString(strings.ToUpper(hexByte(c)))
		}
	}
	return b.String()
}

const hexDigits = "0123456789ABCDEF"

func hexByte(c byte) string {
	return string([]byte{hexDigits[c>>4], hexDigits[c&0x0f]})
}

// canonicalQueryString sorts query parameters by key then value and
// percent-encodes each component, per spec.md §4.4.
func canonicalQueryString(rawQuery string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil || len(values) == 0 {
		return ""
	}
	type kv struct{ k, v string }
	var pairs []kv
	for k, vs := range values {
		for _, v := range vs {
			pairs = append(pairs, kv{uriEncode(k, true), uriEncode(v, true)})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.k + "=" + p.v
	}
	return strings.Join(parts, "&")
}

// canonicalHeaders renders the sorted, lowercased, whitespace-folded
// "name:value\n" block plus the ";"-joined signed-header list, for exactly
// the header names in signedHeaderNames.
func canonicalHeaders(headerValues map[string][]string, signedHeaderNames []string) (headerBlock, signedHeaders string) {
	names := make([]string, len(signedHeaderNames))
	copy(names, signedHeaderNames)
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		vals := headerValues[name]
		folded := make([]string, len(vals))
		for i, v := range vals {
			folded[i] = foldWhitespace(strings.TrimSpace(v))
		}
		b.WriteString(name)
		b.WriteString(":")
		b.WriteString(strings.Join(folded, ","))
		b.WriteString("\n")
	}
	return b.String(), strings.Join(names, ";")
}

func foldWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CanonicalRequest is the full deterministic request representation from
// spec.md §4.4, built before hashing.
type CanonicalRequest struct {
	Method           string
	URI              string
	QueryString      string
	Headers          string
	SignedHeaders    string
	PayloadHashHex   string
}

func (c CanonicalRequest) String() string {
	return strings.Join([]string{
		c.Method,
		c.URI,
		c.QueryString,
		c.Headers,
		c.SignedHeaders,
		c.PayloadHashHex,
	}, "\n")
}

// stringToSign builds the "AWS4-HMAC-SHA256\n<date>\n<scope>\n<hash>" value
// HMAC-signed by the signing key.
func stringToSign(amzDate, scope, canonicalRequestHashHex string) string {
	return strings.Join([]string{algorithm, amzDate, scope, canonicalRequestHashHex}, "\n")
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hexEncode(sum[:])
}

const lowerHexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = lowerHexDigits[c>>4]
		out[i*2+1] = lowerHexDigits[c&0x0f]
	}
	return string(out)
}

func hexSignature(mac []byte) string {
	return hexEncode(mac)
}
