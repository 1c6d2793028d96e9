// Package ffi defines the contract the native proxy is expected to
// satisfy, modeled as a Go interface instead of direct cgo calls so
// the rest of the module never touches unsafe pointers. A real build
// links a cgo shim implementing NativeProxy against the proxy's
// shared library (see cgo_stub.go); this module ships a behavioral
// fake (internal/ffi/fake) for tests and the demo binary.
package ffi

import (
	"context"
	"errors"
)

// ErrNativeFailure wraps any condition where the native side reports
// failure: a nil/zero handle from StartProxy, or a zero ABI version
// from AbiVersion.
var ErrNativeFailure = errors.New("ffi: native proxy failure")

// Handle is an opaque reference to a running native proxy instance.
type Handle uint64

// StartConfig is the subset of supervisor configuration the native
// side needs to bind and run; the body/frame limit options are
// consumed entirely on the Go side and never cross the boundary.
type StartConfig struct {
	Host                     string
	Port                     uint16
	Secure                   bool
	TLSCertPath              string
	TLSKeyPath               string
	TLSCertPassword          string
	Backlog                  uint32
	V6Only                   bool
	Shared                   bool
	RequestClientCertificate bool
	HTTP2                    bool
	HTTP3                    bool
	// BackendAddress is the stream-transport bridge endpoint (unix
	// socket path or "host:port") the native side connects to; empty
	// when TransportMode is callback.
	BackendAddress string
	TransportMode  string // "stream" | "callback"
}

// RequestFrame is one opaque payload delivered by the native side,
// either via the registered callback or via PollRequestFrame.
type RequestFrame struct {
	RequestID uint64
	Payload   []byte
}

// Callback is invoked by the native side once per request frame; it
// must return quickly since it may run on a foreign (non-Go-scheduled)
// thread.
type Callback func(frame RequestFrame)

// NativeProxy is the native proxy's FFI contract, translated into Go
// method calls. Implementations MUST be called in the order
// AbiVersion, StartProxy, then any mix of PushResponseFrame /
// PollRequestFrame, then StopProxy.
type NativeProxy interface {
	// AbiVersion must be called before any other entry point and must
	// return > 0.
	AbiVersion() uint32

	// StartProxy boots the native proxy with the given config,
	// returning the bound handle and the actual bound port (useful
	// when Port was 0). Returns ErrNativeFailure on failure.
	StartProxy(ctx context.Context, cfg StartConfig, cb Callback) (handle Handle, boundPort uint16, err error)

	// StopProxy stops accepting and tears down the given handle. Safe
	// to call at most once per handle; callers are responsible for not
	// double-stopping (the supervisor enforces this, not the fake).
	StopProxy(handle Handle)

	// PushResponseFrame delivers one opaque response payload for
	// requestID. Returns false if the request id is unknown (already
	// completed or never existed) — this is a benign race, never
	// fatal.
	PushResponseFrame(handle Handle, requestID uint64, payload []byte) bool

	// PollRequestFrame is the alternative to registering a Callback,
	// for native implementations that cannot invoke into Go directly.
	// Blocks up to timeoutMs; ok is false on timeout.
	PollRequestFrame(handle Handle, timeoutMs int64) (frame RequestFrame, ok bool)

	// FreeRequestPayload releases a payload returned by
	// PollRequestFrame (or delivered to a Callback). Callers must call
	// this exactly once per frame; a real cgo binding frees the
	// underlying native buffer here.
	FreeRequestPayload(frame RequestFrame)
}
