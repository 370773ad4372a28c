// Package apierror defines the error vocabulary shared by every fily
// component and the mapping from that vocabulary onto HTTP status codes
// and S3-style error codes.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of failure. Kinds are stable strings: they are
// rendered verbatim as the <Code> element of the XML error body, so they
// must match the codes S3 clients already know how to parse.
type Kind string

const (
	KindInvalidBucketName            Kind = "InvalidBucketName"
	KindInvalidObjectName             Kind = "InvalidObjectName"
	KindAuthorizationHeaderMalformed Kind = "AuthorizationHeaderMalformed"
	KindSignatureDoesNotMatch        Kind = "SignatureDoesNotMatch"
	KindInvalidAccessKeyID           Kind = "InvalidAccessKeyId"
	KindAccessDenied                 Kind = "AccessDenied"
	KindRequestTimeTooSkewed         Kind = "RequestTimeTooSkewed"
	KindNoSuchBucket                 Kind = "NoSuchBucket"
	KindNoSuchKey                    Kind = "NoSuchKey"
	KindBucketAlreadyExists          Kind = "BucketAlreadyExists"
	KindBucketNotEmpty               Kind = "BucketNotEmpty"
	KindEntityTooLarge               Kind = "EntityTooLarge"
	KindInternalError                Kind = "InternalError"
)

// statusFor is the Kind -> HTTP status table from spec.md §7.
var statusFor = map[Kind]int{
	KindInvalidBucketName:            http.StatusBadRequest,
	KindInvalidObjectName:            http.StatusBadRequest,
	KindAuthorizationHeaderMalformed: http.StatusBadRequest,
	KindSignatureDoesNotMatch:        http.StatusForbidden,
	KindInvalidAccessKeyID:           http.StatusForbidden,
	KindAccessDenied:                 http.StatusForbidden,
	KindRequestTimeTooSkewed:         http.StatusForbidden,
	KindNoSuchBucket:                 http.StatusNotFound,
	KindNoSuchKey:                    http.StatusNotFound,
	KindBucketAlreadyExists:          http.StatusConflict,
	KindBucketNotEmpty:               http.StatusConflict,
	KindEntityTooLarge:               http.StatusRequestEntityTooLarge,
	KindInternalError:                http.StatusInternalServerError,
}

// Error is the error type every fily component returns for a request that
// cannot proceed. Message is safe to send to the client; the wrapped Err,
// if any, is for logs only and is never rendered.
type Error struct {
	Kind     Kind
	Message  string
	Resource string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status code for e's Kind, defaulting to 500 for
// an unrecognized kind (should not happen outside of a programming error).
func (e *Error) Status() int {
	if s, ok := statusFor[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, resource, message string) *Error {
	return &Error{Kind: kind, Resource: resource, Message: message}
}

// Wrap builds an *Error around a lower-level cause. Use this at the
// boundary where an internal failure (disk I/O, malformed JSON, AEAD
// failure) needs to surface as one of the public Kinds.
func Wrap(kind Kind, resource, message string, cause error) *Error {
	return &Error{Kind: kind, Resource: resource, Message: message, Err: cause}
}

// Internal is a convenience for the common "don't leak the cause" case:
// decryption failures, disk errors and malformed sidecars must all surface
// as a generic InternalError per spec.md §4.3/§7.
func Internal(resource string, cause error) *Error {
	return Wrap(KindInternalError, resource, "an internal error occurred", cause)
}

// As is a thin wrapper over errors.As for call sites that don't want to
// spell out the target type.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
