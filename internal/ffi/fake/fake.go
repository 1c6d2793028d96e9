// Package fake is an in-memory, behaviorally faithful stand-in for a
// native proxy: it has no sockets or HTTP parsing of its own, but lets
// tests and the demo binary push request frames and observe pushed
// response frames exactly as a real native proxy's FFI boundary would
// deliver them.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/hnolan/httpbridge/internal/ffi"
)

// Proxy implements ffi.NativeProxy entirely in Go. Deliver hands over
// what a real proxy would deliver inbound (request frames);
// NextResponse observes what the handler side pushed back.
type Proxy struct {
	mu      sync.Mutex
	handles map[ffi.Handle]*session
	nextID  uint64
	abi     uint32
}

type session struct {
	cfg       ffi.StartConfig
	cb        ffi.Callback
	responses chan response
	pending   chan ffi.RequestFrame
	closed    bool
}

type response struct {
	requestID uint64
	payload   []byte
}

// New returns a fake native proxy reporting the given ABI version
// (a real proxy reports 0 only when unusable).
func New(abiVersion uint32) *Proxy {
	return &Proxy{
		handles: make(map[ffi.Handle]*session),
		abi:     abiVersion,
	}
}

func (p *Proxy) AbiVersion() uint32 { return p.abi }

func (p *Proxy) StartProxy(ctx context.Context, cfg ffi.StartConfig, cb ffi.Callback) (ffi.Handle, uint16, error) {
	if p.abi == 0 {
		return 0, 0, ffi.ErrNativeFailure
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	h := ffi.Handle(p.nextID)
	p.handles[h] = &session{
		cfg:       cfg,
		cb:        cb,
		responses: make(chan response, 64),
		pending:   make(chan ffi.RequestFrame, 64),
	}
	port := cfg.Port
	if port == 0 {
		port = 10000 + uint16(p.nextID)
	}
	return h, port, nil
}

func (p *Proxy) StopProxy(handle ffi.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.handles[handle]
	if !ok || s.closed {
		return
	}
	s.closed = true
	delete(p.handles, handle)
}

func (p *Proxy) PushResponseFrame(handle ffi.Handle, requestID uint64, payload []byte) bool {
	p.mu.Lock()
	s, ok := p.handles[handle]
	p.mu.Unlock()
	if !ok || s.closed {
		return false
	}
	cp := append([]byte(nil), payload...)
	select {
	case s.responses <- response{requestID: requestID, payload: cp}:
		return true
	default:
		return false
	}
}

func (p *Proxy) PollRequestFrame(handle ffi.Handle, timeoutMs int64) (ffi.RequestFrame, bool) {
	p.mu.Lock()
	s, ok := p.handles[handle]
	p.mu.Unlock()
	if !ok {
		return ffi.RequestFrame{}, false
	}
	timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
	defer timer.Stop()
	select {
	case f := <-s.pending:
		return f, true
	case <-timer.C:
		return ffi.RequestFrame{}, false
	}
}

func (p *Proxy) FreeRequestPayload(frame ffi.RequestFrame) {
	// Nothing to release in the fake; the payload is an ordinary Go
	// slice, collected by the garbage collector like any other.
}

// Deliver simulates the native proxy receiving one client request and
// handing it to the bridge: either invoking the registered callback,
// or, if the handle was started without one, queuing it for
// PollRequestFrame.
func (p *Proxy) Deliver(handle ffi.Handle, frame ffi.RequestFrame) {
	p.mu.Lock()
	s, ok := p.handles[handle]
	p.mu.Unlock()
	if !ok || s.closed {
		return
	}
	if s.cb != nil {
		s.cb(frame)
		return
	}
	s.pending <- frame
}

// NextResponse blocks for the next payload pushed back via
// PushResponseFrame for handle, used by tests to observe what the
// handler side sent.
func (p *Proxy) NextResponse(handle ffi.Handle, timeout time.Duration) (requestID uint64, payload []byte, ok bool) {
	p.mu.Lock()
	s, exists := p.handles[handle]
	p.mu.Unlock()
	if !exists {
		return 0, nil, false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-s.responses:
		return r.requestID, r.payload, true
	case <-timer.C:
		return 0, nil, false
	}
}
