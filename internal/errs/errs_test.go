package errs

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{401, KindUnauthorized},
		{403, KindUnauthorized},
		{429, KindRateLimited},
		{500, KindServerError},
		{503, KindServerError},
		{400, KindRemoteError},
		{404, KindRemoteError},
	}

	for _, tt := range tests {
		err := FromStatus(tt.status, "boom")
		assert.Equal(t, tt.want, err.Kind, "status %d", tt.status)
		assert.Equal(t, tt.status, err.Status)
	}
}

func TestClassifyKeepsKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("processing note: %w", ErrMissingCredential)
	assert.Equal(t, KindMissingCredential, Classify(err))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyNetworkErrors(t *testing.T) {
	assert.Equal(t, KindTimeout, Classify(timeoutErr{}))

	opErr := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	assert.Equal(t, KindNetworkUnreachable, Classify(opErr))

	urlErr := &url.Error{Op: "Post", URL: "http://example.com", Err: errors.New("no such host")}
	assert.Equal(t, KindNetworkUnreachable, Classify(urlErr))

	dnsErr := &net.DNSError{Err: "no such host", Name: "example.com"}
	assert.Equal(t, KindNetworkUnreachable, Classify(dnsErr))
}

func TestClassifyUnknown(t *testing.T) {
	assert.Equal(t, KindUnknown, Classify(errors.New("something odd")))
	assert.Equal(t, KindUnknown, Classify(nil))
}

// An error whose text merely mentions an HTTP code must not be classified
// as a remote failure. Only structured status codes count.
func TestClassifyIgnoresStatusCodeText(t *testing.T) {
	err := errors.New("user typed 401 into the title")
	assert.Equal(t, KindUnknown, Classify(err))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(timeoutErr{}))
	assert.True(t, IsTransient(&net.OpError{Op: "dial", Err: errors.New("unreachable")}))
	assert.False(t, IsTransient(ErrMissingCredential))
	assert.False(t, IsTransient(FromStatus(401, "denied")))
	assert.False(t, IsTransient(errors.New("whatever")))
}

func TestURLErrorTimeout(t *testing.T) {
	// url.Error forwards Timeout from its cause; must land on KindTimeout,
	// not generic unreachable.
	wrapped := &url.Error{Op: "Post", URL: "http://example.com", Err: timeoutErr{}}
	assert.Equal(t, KindTimeout, Classify(wrapped))
	assert.True(t, IsTransient(wrapped))
}

func TestErrorFormatting(t *testing.T) {
	e := Wrap(KindDeleteFailed, "failed to delete note", errors.New("disk gone"))
	assert.Equal(t, "failed to delete note: disk gone", e.Error())
	assert.Equal(t, "disk gone", errors.Unwrap(e).Error())

	assert.Equal(t, "not found", ErrNotFound.Error())
	assert.Equal(t, "missing_credential", KindMissingCredential.String())
}
