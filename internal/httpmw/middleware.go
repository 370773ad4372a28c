// Package httpmw wires the SigV4 validator into the HTTP request
// pipeline: a chi middleware that buffers the body (bounded, returning
// EntityTooLarge on overflow), verifies the signature, and attaches the
// authenticated principal to the request context — modeled on spec.md
// §4.4's "typed pipeline" design note. Grounded on
// lib/http/middleware_test.go and lib/http/auth_test.go's Config /
// AuthConfig / CtxGetUser shape, with go-chi/chi/v5 as the router (the
// teacher's actual router, per lib/http's own test imports) and
// sirupsen/logrus + google/uuid for request correlation.
package httpmw

import (
	"context"
	"io"
	"net/http"

	"github.com/fritsstegmann/fily/internal/apierror"
	"github.com/fritsstegmann/fily/internal/s3xml"
	"github.com/fritsstegmann/fily/internal/sigv4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey int

const (
	ctxKeyPrincipal contextKey = iota
	ctxKeyBody
	ctxKeyRequestID
)

// CtxGetUser returns the authenticated credential attached to req's
// context by Auth, mirroring lib/http's CtxGetUser(ctx) naming.
func CtxGetUser(ctx context.Context) (sigv4.Credential, bool) {
	c, ok := ctx.Value(ctxKeyPrincipal).(sigv4.Credential)
	return c, ok
}

// CtxGetBody returns the fully buffered request body Auth already read.
func CtxGetBody(ctx context.Context) []byte {
	b, _ := ctx.Value(ctxKeyBody).([]byte)
	return b
}

// CtxGetRequestID returns the correlation id assigned to this request.
func CtxGetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// Auth returns middleware that buffers the request body (bounded by
// maxBodyBytes), verifies its SigV4 signature against creds, and either
// calls through with an authenticated context or writes an S3-style XML
// error response and stops the chain.
func Auth(validator *sigv4.Validator, maxBodyBytes int64, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.NewString()
			ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
			r = r.WithContext(ctx)

			if cl := sigv4.ContentLengthHeader(r); cl >= 0 && cl > maxBodyBytes {
				writeError(w, r, log, apierror.New(apierror.KindEntityTooLarge, r.URL.Path, "request body exceeds configured maximum"))
				return
			}

			limited := io.LimitReader(r.Body, maxBodyBytes+1)
			body, err := io.ReadAll(limited)
			if err != nil {
				writeError(w, r, log, apierror.Internal(r.URL.Path, err))
				return
			}
			if int64(len(body)) > maxBodyBytes {
				writeError(w, r, log, apierror.New(apierror.KindEntityTooLarge, r.URL.Path, "request body exceeds configured maximum"))
				return
			}

			cred, aerr := validator.Verify(r, body)
			if aerr != nil {
				// Logging discipline (spec.md §4.4): never log the access
				// key, signature, secret, or canonical string — just the
				// error kind and the correlation id.
				log.WithFields(logrus.Fields{
					"request_id": requestID,
					"kind":       aerr.Kind,
				}).Warn("authentication failed")
				writeError(w, r, log, aerr)
				return
			}

			ctx = context.WithValue(r.Context(), ctxKeyPrincipal, cred)
			ctx = context.WithValue(ctx, ctxKeyBody, body)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeError renders an apierror.Error as the standard S3 XML error body.
func writeError(w http.ResponseWriter, r *http.Request, log *logrus.Logger, err *apierror.Error) {
	requestID := CtxGetRequestID(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}
	if err.Err != nil {
		log.WithFields(logrus.Fields{
			"request_id": requestID,
			"kind":       err.Kind,
			"cause":      err.Err.Error(),
		}).Error("request failed")
	}

	body, marshalErr := s3xml.Marshal(s3xml.ErrorResponse{
		Code:      string(err.Kind),
		Message:   err.Message,
		Resource:  err.Resource,
		RequestID: requestID,
	})
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("X-Request-Id", requestID)
	w.WriteHeader(err.Status())
	if marshalErr == nil {
		_, _ = w.Write(body)
	}
}

// WriteAPIError is the exported entrypoint handlers use to report a
// failure after the Auth middleware has already run.
func WriteAPIError(w http.ResponseWriter, r *http.Request, log *logrus.Logger, err *apierror.Error) {
	writeError(w, r, log, err)
}

// RequestLogger logs method/path/status/duration for every request at
// Info level, tagged with the correlation id Auth assigned (or a fresh
// one if Auth has not run yet, e.g. for unauthenticated routes like
// health checks).
func RequestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
				"status": sw.status,
			}).Info("request handled")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Recoverer converts a panic in a downstream handler into a 500
// InternalError XML response instead of crashing the server process,
// matching the teacher's own lib/http recovery-middleware convention.
func Recoverer(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.WithField("panic", rec).Error("recovered from panic")
					writeError(w, r, log, apierror.Internal(r.URL.Path, errPanic{rec}))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type errPanic struct{ v any }

func (e errPanic) Error() string { return "panic recovered" }
