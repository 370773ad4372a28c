package s3api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fritsstegmann/fily/internal/apierror"
	"github.com/fritsstegmann/fily/internal/httpmw"
	"github.com/fritsstegmann/fily/internal/metadata"
	"github.com/fritsstegmann/fily/internal/s3xml"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// Handlers wires an ObjectStore into chi-routable HTTP handlers matching
// the route table of spec.md §4.5.
type Handlers struct {
	store  *ObjectStore
	log    *logrus.Logger
	region string
}

// NewHandlers builds a Handlers bound to store.
func NewHandlers(store *ObjectStore, log *logrus.Logger, region string) *Handlers {
	return &Handlers{store: store, log: log, region: region}
}

// Mount registers every route from spec.md §4.5 onto r.
func (h *Handlers) Mount(r chi.Router) {
	r.Get("/", h.ListBuckets)
	r.Put("/{bucket}", h.CreateBucket)
	r.Delete("/{bucket}", h.DeleteBucket)
	r.Get("/{bucket}", h.GetBucket)
	r.Head("/{bucket}", h.HeadBucket)
	r.Get("/{bucket}/*", h.GetObject)
	r.Head("/{bucket}/*", h.HeadObject)
	r.Put("/{bucket}/*", h.PutObject)
	r.Delete("/{bucket}/*", h.DeleteObject)
}

func objectKey(r *http.Request) string {
	return chi.URLParam(r, "*")
}

// ListBuckets serves GET /.
func (h *Handlers) ListBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.store.ListBuckets()
	if err != nil {
		h.writeError(w, r, apierror.Internal("/", err))
		return
	}
	entries := make([]s3xml.Bucket, 0, len(buckets))
	for _, b := range buckets {
		entries = append(entries, s3xml.Bucket{Name: b.Name, CreationDate: b.CreationDate.Format(time.RFC3339)})
	}
	result := s3xml.NewListAllMyBucketsResult(s3xml.Owner{ID: "fily", DisplayName: "fily"}, entries)
	h.writeXML(w, http.StatusOK, result)
}

// CreateBucket serves PUT /{bucket}.
func (h *Handlers) CreateBucket(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	if aerr := h.store.CreateBucket(bucket); aerr != nil {
		h.writeError(w, r, aerr)
		return
	}
	w.Header().Set("Location", "/"+bucket)
	w.WriteHeader(http.StatusOK)
}

// DeleteBucket serves DELETE /{bucket}.
func (h *Handlers) DeleteBucket(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	if aerr := h.store.DeleteBucket(bucket); aerr != nil {
		h.writeError(w, r, aerr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBucket serves GET /{bucket}: the ListObjects stub, or
// GetBucketLocation when invoked as GET /{bucket}?location (spec.md's
// supplemented operation, SPEC_FULL.md §4.5).
func (h *Handlers) GetBucket(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	exists, err := h.store.BucketExists(bucket)
	if err != nil {
		h.writeError(w, r, apierror.Internal(bucket, err))
		return
	}
	if !exists {
		h.writeError(w, r, apierror.New(apierror.KindNoSuchBucket, bucket, "no such bucket"))
		return
	}

	if _, ok := r.URL.Query()["location"]; ok {
		h.writeXML(w, http.StatusOK, s3xml.NewLocationConstraint(h.region))
		return
	}

	query := r.URL.Query()
	maxKeys := 1000
	result := s3xml.NewEmptyListBucketResult(bucket, query.Get("prefix"), query.Get("marker"), maxKeys)
	h.writeXML(w, http.StatusOK, result)
}

// HeadBucket serves HEAD /{bucket}: the same existence check as GetBucket,
// with no response body (SPEC_FULL.md's supplemented HEAD operations).
func (h *Handlers) HeadBucket(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	exists, err := h.store.BucketExists(bucket)
	if err != nil {
		w.WriteHeader(apierror.Internal(bucket, err).Status())
		return
	}
	if !exists {
		w.WriteHeader(apierror.New(apierror.KindNoSuchBucket, bucket, "no such bucket").Status())
		return
	}
	w.WriteHeader(http.StatusOK)
}

// PutObject serves PUT /{bucket}/{key...}.
func (h *Handlers) PutObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := objectKey(r)
	body := httpmw.CtxGetBody(r.Context())

	userMeta := extractUserMetadata(r.Header)
	rec, aerr := h.store.PutObject(bucket, key, body, r.Header.Get("Content-Type"), userMeta)
	if aerr != nil {
		h.writeError(w, r, aerr)
		return
	}
	w.Header().Set("ETag", rec.ETag)
	w.WriteHeader(http.StatusOK)
}

// GetObject serves GET /{bucket}/{key...}.
func (h *Handlers) GetObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := objectKey(r)

	payload, rec, aerr := h.store.GetObject(bucket, key)
	if aerr != nil {
		h.writeError(w, r, aerr)
		return
	}
	writeObjectHeaders(w, rec)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// HeadObject serves HEAD /{bucket}/{key...}: identical to GetObject but
// with no response body, per ordinary S3 HEAD semantics (SPEC_FULL.md's
// supplemented HEAD operations).
func (h *Handlers) HeadObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := objectKey(r)

	_, rec, aerr := h.store.GetObject(bucket, key)
	if aerr != nil {
		w.WriteHeader(aerr.Status())
		return
	}
	writeObjectHeaders(w, rec)
	w.WriteHeader(http.StatusOK)
}

// DeleteObject serves DELETE /{bucket}/{key...}.
func (h *Handlers) DeleteObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := objectKey(r)

	if aerr := h.store.DeleteObject(bucket, key); aerr != nil {
		h.writeError(w, r, aerr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeObjectHeaders(w http.ResponseWriter, rec metadata.Record) {
	h := w.Header()
	h.Set("Content-Type", rec.ContentType)
	h.Set("Content-Length", strconv.FormatInt(rec.ContentLength, 10))
	h.Set("ETag", rec.ETag)
	h.Set("Last-Modified", rec.LastModified.Format(http.TimeFormat))
	for k, v := range rec.UserMetadata {
		h.Set("X-Amz-Meta-"+k, v)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, aerr *apierror.Error) {
	httpmw.WriteAPIError(w, r, h.log, aerr)
}

func (h *Handlers) writeXML(w http.ResponseWriter, status int, v any) {
	body, err := s3xml.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func extractUserMetadata(header http.Header) map[string]string {
	const prefix = "x-amz-meta-"
	meta := map[string]string{}
	for name, values := range header {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, prefix) || len(values) == 0 {
			continue
		}
		meta[strings.TrimPrefix(lower, prefix)] = values[0]
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
