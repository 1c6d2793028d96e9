package bridge

import (
	"fmt"

	"github.com/hnolan/httpbridge/internal/codec"
)

// Kind is the bridge's error taxonomy. It drives how a failure is
// surfaced: synthesized response, connection reset, or silent close.
type Kind int

const (
	KindMalformed Kind = iota
	KindLimitExceeded
	KindProtocolViolation
	KindHandlerFailure
	KindIdleTimeout
	KindNativeFailure
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindLimitExceeded:
		return "limit_exceeded"
	case KindProtocolViolation:
		return "protocol_violation"
	case KindHandlerFailure:
		return "handler_failure"
	case KindIdleTimeout:
		return "idle_timeout"
	case KindNativeFailure:
		return "native_failure"
	default:
		return "unknown"
	}
}

// Error pairs a Kind with the underlying cause, and whether the
// failure occurred before or after the response start frame was
// written (which determines pre-response vs post-response handling).
type Error struct {
	Kind          Kind
	Cause         error
	PostResponse  bool
	DeclaredBytes int // set for LimitExceeded, 0 otherwise
}

func (e *Error) Error() string {
	return fmt.Sprintf("bridge: %s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, cause error, postResponse bool) *Error {
	return &Error{Kind: kind, Cause: cause, PostResponse: postResponse}
}

// textPlainHeader is the single header every synthesized error
// response carries.
var textPlainHeader = codec.Header{Name: "content-type", Value: "text/plain; charset=utf-8"}

// synthesizeBadRequest builds the deterministic 400 response for a
// pre-response Malformed/LimitExceeded/ProtocolViolation.
func synthesizeBadRequest(body string) (codec.ResponseHead, []byte) {
	return codec.ResponseHead{Status: 400, Headers: []codec.Header{textPlainHeader}}, []byte(body)
}

// synthesizeServerError builds the deterministic 500 response for a
// pre-response HandlerFailure.
func synthesizeServerError(body string) (codec.ResponseHead, []byte) {
	return codec.ResponseHead{Status: 500, Headers: []codec.Header{textPlainHeader}}, []byte(body)
}

// invalidRequestBody formats the LimitExceeded response body:
// "invalid bridge request:" followed by the declared size.
func invalidRequestBody(reason string, declaredBytes int) string {
	return fmt.Sprintf("invalid bridge request: %s (%d bytes)", reason, declaredBytes)
}
