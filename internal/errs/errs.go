// Package errs defines the error taxonomy shared across the service.
//
// Remote failures carry the HTTP status observed by the client as a
// structured Kind instead of being reconstructed from error text later.
package errs

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Kind classifies an error for status routing and user-facing reporting.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetworkUnreachable
	KindTimeout
	KindMissingCredential
	KindUnauthorized
	KindRateLimited
	KindServerError
	KindRemoteError
	KindRecordingStart
	KindRecordingStop
	KindPermissionDenied
	KindDeleteFailed
	KindUpdateFailed
	KindNotFound
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindNetworkUnreachable: "network_unreachable",
	KindTimeout:            "timeout",
	KindMissingCredential:  "missing_credential",
	KindUnauthorized:       "unauthorized",
	KindRateLimited:        "rate_limited",
	KindServerError:        "server_error",
	KindRemoteError:        "remote_error",
	KindRecordingStart:     "recording_start",
	KindRecordingStop:      "recording_stop",
	KindPermissionDenied:   "permission_denied",
	KindDeleteFailed:       "delete_failed",
	KindUpdateFailed:       "update_failed",
	KindNotFound:           "not_found",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is a classified error. Status holds the remote HTTP status when the
// error originated from a provider response, zero otherwise.
type Error struct {
	Kind   Kind
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Msg != "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a classification to an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// FromStatus maps a remote HTTP status to a classified error.
func FromStatus(status int, msg string) *Error {
	kind := KindRemoteError
	switch {
	case status == 401 || status == 403:
		kind = KindUnauthorized
	case status == 429:
		kind = KindRateLimited
	case status >= 500:
		kind = KindServerError
	}
	return &Error{Kind: kind, Status: status, Msg: msg}
}

// Common sentinels.
var (
	ErrNotFound          = New(KindNotFound, "not found")
	ErrMissingCredential = New(KindMissingCredential, "api key not configured")
	ErrRecordingActive   = New(KindRecordingStart, "a recording is already in progress")
	ErrNoRecording       = New(KindRecordingStop, "no active recording")
)

// Classify resolves the Kind of an arbitrary error. Typed inspection only:
// classified errors keep their Kind, net errors map by shape, the rest is
// unknown.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}

	var ue *url.Error
	if errors.As(err, &ue) {
		return KindNetworkUnreachable
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return KindNetworkUnreachable
	}
	var de *net.DNSError
	if errors.As(err, &de) {
		return KindNetworkUnreachable
	}

	return KindUnknown
}

// IsTransient reports whether the failure is transport-level, meaning a
// later retry may succeed without any user action.
func IsTransient(err error) bool {
	switch Classify(err) {
	case KindNetworkUnreachable, KindTimeout:
		return true
	}
	return false
}
