package sigv4

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws/credentials"
	v4signer "github.com/aws/aws-sdk-go/aws/signer/v4"
	"github.com/fritsstegmann/fily/internal/apierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signWithAWSSDK builds and signs a request exactly as a real S3 client
// would, using aws-sdk-go's own v4 signer — a reference implementation
// independent of this package's own canonicalization code — mirroring
// signature-v4_test.go's use of the SDK to produce ground-truth requests.
func signWithAWSSDK(t *testing.T, method, rawURL, accessKey, secretKey, region string, body []byte, signTime time.Time) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, rawURL, bytes.NewReader(body))
	require.NoError(t, err)

	signer := v4signer.NewSigner(credentials.NewStaticCredentials(accessKey, secretKey, ""))
	_, err = signer.Sign(req, bytes.NewReader(body), "s3", region, signTime)
	require.NoError(t, err)
	return req
}

func newFixture(t *testing.T) (*Validator, string, string, string) {
	t.Helper()
	accessKey := "AKIAEXAMPLEFILY0001"
	secretKey := "exampleSecretKeyForFilyTestsOnly0123"
	region := "us-east-1"
	store := NewCredentialStore([]Credential{
		{AccessKeyID: accessKey, SecretAccessKey: secretKey, Region: region},
	})
	return NewValidator(store), accessKey, secretKey, region
}

func TestVerifyAcceptsValidSDKSignedRequest(t *testing.T) {
	v, accessKey, secretKey, region := newFixture(t)
	now := time.Now().UTC()
	v.now = func() time.Time { return now }

	body := []byte("hello, encrypted world")
	req := signWithAWSSDK(t, http.MethodPut, "http://fily.example.com/mybucket/cat.txt", accessKey, secretKey, region, body, now)

	cred, aerr := v.Verify(req, body)
	require.Nil(t, aerr)
	assert.Equal(t, accessKey, cred.AccessKeyID)
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	v, accessKey, secretKey, region := newFixture(t)
	now := time.Now().UTC()
	v.now = func() time.Time { return now }

	body := []byte("original payload")
	req := signWithAWSSDK(t, http.MethodPut, "http://fily.example.com/mybucket/cat.txt", accessKey, secretKey, region, body, now)

	tampered := []byte("tampered payload!")
	_, aerr := v.Verify(req, tampered)
	require.NotNil(t, aerr)
	assert.Equal(t, apierror.KindSignatureDoesNotMatch, aerr.Kind)
}

func TestVerifyRejectsTamperedPath(t *testing.T) {
	v, accessKey, secretKey, region := newFixture(t)
	now := time.Now().UTC()
	v.now = func() time.Time { return now }

	body := []byte("payload")
	req := signWithAWSSDK(t, http.MethodPut, "http://fily.example.com/mybucket/cat.txt", accessKey, secretKey, region, body, now)
	req.URL.Path = "/otherbucket/cat.txt"

	_, aerr := v.Verify(req, body)
	require.NotNil(t, aerr)
	assert.Equal(t, apierror.KindSignatureDoesNotMatch, aerr.Kind)
}

func TestVerifyRejectsUnknownAccessKey(t *testing.T) {
	v, _, secretKey, region := newFixture(t)
	now := time.Now().UTC()
	v.now = func() time.Time { return now }

	body := []byte("payload")
	req := signWithAWSSDK(t, http.MethodGet, "http://fily.example.com/mybucket/cat.txt", "AKIAUNKNOWNKEY000000", secretKey, region, body, now)

	_, aerr := v.Verify(req, body)
	require.NotNil(t, aerr)
	assert.Equal(t, apierror.KindInvalidAccessKeyID, aerr.Kind)
}

func TestVerifyRejectsRegionMismatch(t *testing.T) {
	v, accessKey, secretKey, _ := newFixture(t)
	now := time.Now().UTC()
	v.now = func() time.Time { return now }

	body := []byte("payload")
	req := signWithAWSSDK(t, http.MethodGet, "http://fily.example.com/mybucket/cat.txt", accessKey, secretKey, "eu-west-1", body, now)

	_, aerr := v.Verify(req, body)
	require.NotNil(t, aerr)
	assert.Equal(t, apierror.KindSignatureDoesNotMatch, aerr.Kind)
}

func TestVerifyRejectsSkewedClock(t *testing.T) {
	v, accessKey, secretKey, region := newFixture(t)
	signTime := time.Now().UTC()
	v.now = func() time.Time { return signTime.Add(20 * time.Minute) }

	body := []byte("payload")
	req := signWithAWSSDK(t, http.MethodGet, "http://fily.example.com/mybucket/cat.txt", accessKey, secretKey, region, body, signTime)

	_, aerr := v.Verify(req, body)
	require.NotNil(t, aerr)
	assert.Equal(t, apierror.KindRequestTimeTooSkewed, aerr.Kind)
}

func TestVerifyAcceptsSkewWithinTolerance(t *testing.T) {
	v, accessKey, secretKey, region := newFixture(t)
	signTime := time.Now().UTC()
	v.now = func() time.Time { return signTime.Add(10 * time.Minute) }

	body := []byte("payload")
	req := signWithAWSSDK(t, http.MethodGet, "http://fily.example.com/mybucket/cat.txt", accessKey, secretKey, region, body, signTime)

	_, aerr := v.Verify(req, body)
	assert.Nil(t, aerr)
}

func TestVerifyRejectsMissingAuthorizationHeader(t *testing.T) {
	v, _, _, _ := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/mybucket/cat.txt", nil)
	_, aerr := v.Verify(req, nil)
	require.NotNil(t, aerr)
	assert.Equal(t, apierror.KindAccessDenied, aerr.Kind)
}

func TestVerifyRejectsMalformedAuthorizationHeader(t *testing.T) {
	v, _, _, _ := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/mybucket/cat.txt", nil)
	req.Header.Set("Authorization", "Bearer not-a-sigv4-header")
	_, aerr := v.Verify(req, nil)
	require.NotNil(t, aerr)
	assert.Equal(t, apierror.KindAuthorizationHeaderMalformed, aerr.Kind)
}

func TestCanonicalQueryStringSortsByKeyThenValue(t *testing.T) {
	got := canonicalQueryString("b=2&a=2&a=1")
	assert.Equal(t, "a=1&a=2&b=2", got)
}

func TestUriEncodePreservesUnreserved(t *testing.T) {
	assert.Equal(t, "abc-._~XYZ09", uriEncode("abc-._~XYZ09", false))
	assert.Equal(t, "a%20b", uriEncode("a b", false))
	assert.Equal(t, "a%2Fb", uriEncode("a/b", true))
	assert.Equal(t, "a/b", uriEncode("a/b", false))
}

func TestDeriveSigningKeyIsDeterministic(t *testing.T) {
	k1 := deriveSigningKey("secret", "20230101", "us-east-1")
	k2 := deriveSigningKey("secret", "20230101", "us-east-1")
	assert.Equal(t, k1, k2)

	k3 := deriveSigningKey("secret", "20230102", "us-east-1")
	assert.NotEqual(t, k1, k3)
}
