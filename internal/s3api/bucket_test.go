package s3api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateListDeleteBucketLifecycle(t *testing.T) {
	_, r := newTestServer(t, nil)

	createReq := signedRequest(t, http.MethodPut, "/photos", nil, nil)
	createRec := httptest.NewRecorder()
	r.ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusOK, createRec.Code)
	assert.Equal(t, "/photos", createRec.Header().Get("Location"))

	listReq := signedRequest(t, http.MethodGet, "/", nil, nil)
	listRec := httptest.NewRecorder()
	r.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)
	assert.Contains(t, listRec.Body.String(), "<Name>photos</Name>")

	deleteReq := signedRequest(t, http.MethodDelete, "/photos", nil, nil)
	deleteRec := httptest.NewRecorder()
	r.ServeHTTP(deleteRec, deleteReq)
	assert.Equal(t, http.StatusNoContent, deleteRec.Code)
}

func TestCreateBucketRejectsDuplicate(t *testing.T) {
	store, r := newTestServer(t, nil)
	require.Nil(t, store.CreateBucket("photos"))

	req := signedRequest(t, http.MethodPut, "/photos", nil, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "BucketAlreadyExists")
}

func TestCreateBucketRejectsInvalidName(t *testing.T) {
	_, r := newTestServer(t, nil)

	req := signedRequest(t, http.MethodPut, "/AB", nil, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "InvalidBucketName")
}

func TestDeleteBucketNotEmpty(t *testing.T) {
	store, r := newTestServer(t, nil)
	require.Nil(t, store.CreateBucket("photos"))

	putReq := signedRequest(t, http.MethodPut, "/photos/cat.txt", []byte("hi"), nil)
	putRec := httptest.NewRecorder()
	r.ServeHTTP(putRec, putReq)
	require.Equal(t, http.StatusOK, putRec.Code)

	delReq := signedRequest(t, http.MethodDelete, "/photos", nil, nil)
	delRec := httptest.NewRecorder()
	r.ServeHTTP(delRec, delReq)
	assert.Equal(t, http.StatusConflict, delRec.Code)
	assert.Contains(t, delRec.Body.String(), "BucketNotEmpty")
}

func TestDeleteMissingBucketReturnsNoSuchBucket(t *testing.T) {
	_, r := newTestServer(t, nil)

	req := signedRequest(t, http.MethodDelete, "/ghost", nil, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NoSuchBucket")
}

func TestGetBucketLocationReturnsConfiguredRegion(t *testing.T) {
	store, r := newTestServer(t, nil)
	require.Nil(t, store.CreateBucket("photos"))

	req := signedRequest(t, http.MethodGet, "/photos?location", nil, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "LocationConstraint")
}

func TestHeadBucketReportsExistence(t *testing.T) {
	store, r := newTestServer(t, nil)
	require.Nil(t, store.CreateBucket("photos"))

	req := signedRequest(t, http.MethodHead, "/photos", nil, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestHeadMissingBucketReturnsNotFound(t *testing.T) {
	_, r := newTestServer(t, nil)

	req := signedRequest(t, http.MethodHead, "/ghost", nil, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestGetBucketStubListingIsEmpty(t *testing.T) {
	store, r := newTestServer(t, nil)
	require.Nil(t, store.CreateBucket("photos"))

	req := signedRequest(t, http.MethodGet, "/photos", nil, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<ListBucketResult")
	assert.NotContains(t, rec.Body.String(), "<Contents>")
}
