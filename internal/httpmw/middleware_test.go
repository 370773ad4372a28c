package httpmw

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws/credentials"
	v4signer "github.com/aws/aws-sdk-go/aws/signer/v4"
	"github.com/fritsstegmann/fily/internal/sigv4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(bytes.NewBuffer(nil))
	return log
}

func signedRequest(t *testing.T, method, rawURL, accessKey, secretKey, region string, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, rawURL, bytes.NewReader(body))
	require.NoError(t, err)
	signer := v4signer.NewSigner(credentials.NewStaticCredentials(accessKey, secretKey, ""))
	_, err = signer.Sign(req, bytes.NewReader(body), "s3", region, time.Now().UTC())
	require.NoError(t, err)
	return req
}

func TestAuthRejectsOversizedContentLength(t *testing.T) {
	store := sigv4.NewCredentialStore(nil)
	validator := sigv4.NewValidator(store)
	mw := Auth(validator, 10, testLogger())

	called := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodPut, "/bucket/key", bytes.NewReader(make([]byte, 100)))
	req.ContentLength = 100
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, called, "handler must not run when body exceeds the configured maximum")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAuthRejectsBodyExceedingLimitWithoutContentLength(t *testing.T) {
	store := sigv4.NewCredentialStore(nil)
	validator := sigv4.NewValidator(store)
	mw := Auth(validator, 10, testLogger())

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPut, "/bucket/key", bytes.NewReader(make([]byte, 100)))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAuthPassesAuthenticatedRequestThrough(t *testing.T) {
	accessKey, secretKey, region := "AKIAEXAMPLEFILY0001", "exampleSecretKeyForFilyTestsOnly0123", "us-east-1"
	store := sigv4.NewCredentialStore([]sigv4.Credential{{AccessKeyID: accessKey, SecretAccessKey: secretKey, Region: region}})
	validator := sigv4.NewValidator(store)
	mw := Auth(validator, 1<<20, testLogger())

	var gotCred sigv4.Credential
	var gotBody []byte
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCred, _ = CtxGetUser(r.Context())
		gotBody = CtxGetBody(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	body := []byte("hello\n")
	req := signedRequest(t, http.MethodPut, "http://fily.example.com/photos/cat.txt", accessKey, secretKey, region, body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, accessKey, gotCred.AccessKeyID)
	assert.Equal(t, body, gotBody)
}

func TestAuthRejectsUnsignedRequestWithXMLError(t *testing.T) {
	store := sigv4.NewCredentialStore(nil)
	validator := sigv4.NewValidator(store)
	mw := Auth(validator, 1<<20, testLogger())

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for an unauthenticated request")
	}))

	req := httptest.NewRequest(http.MethodGet, "/photos/cat.txt", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Error>")
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
}

func TestRecovererConvertsPanicToInternalError(t *testing.T) {
	mw := Recoverer(testLogger())
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/photos/cat.txt", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "InternalError")
}
