package handler

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrSocketClosed is returned by Write and PushInbound after the
// detached socket has been closed from either side; Read reports io.EOF
// instead.
var ErrSocketClosed = errors.New("handler: detached socket closed")

// DetachedSocket is the post-upgrade tunnel handle shared between the
// handler (which reads and writes application bytes) and the engine's
// tunnel pump (which relays the same bytes to and from the wire). It
// models two independent byte directions rather than a single pipe,
// since the handler side and the pump side each own one reader and one
// writer, never both on the same direction:
//
//	wire  -- PushInbound -->  [inbound queue]  -- Read -->   handler
//	wire  <-- NextOutbound -- [outbound queue] <-- Write --  handler
//
// Close is idempotent and may be called from either side; the
// underlying queues are only torn down once.
type DetachedSocket struct {
	mu       sync.Mutex
	inbound  chan []byte
	outbound chan []byte
	closed   bool
	closeCh  chan struct{}
}

// NewDetachedSocket constructs a socket with bounded inbound/outbound
// queues of the given depth.
func NewDetachedSocket(depth int) *DetachedSocket {
	if depth <= 0 {
		depth = 16
	}
	return &DetachedSocket{
		inbound:  make(chan []byte, depth),
		outbound: make(chan []byte, depth),
		closeCh:  make(chan struct{}),
	}
}

// Read returns the next chunk of data the wire side has delivered. It
// returns io.EOF once the socket has been closed and no further
// inbound chunks are queued.
func (d *DetachedSocket) Read(ctx context.Context) ([]byte, error) {
	select {
	case chunk := <-d.inbound:
		return chunk, nil
	case <-d.closeCh:
		select {
		case chunk := <-d.inbound:
			return chunk, nil
		default:
		}
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write hands a chunk of handler-originated data to the tunnel pump
// for relay onto the wire.
func (d *DetachedSocket) Write(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	select {
	case d.outbound <- data:
		return nil
	case <-d.closeCh:
		return ErrSocketClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextOutbound is the tunnel pump's half of Write: it blocks for the
// next handler-written chunk, or returns ok=false once the socket is
// closed and no further outbound chunks are queued.
func (d *DetachedSocket) NextOutbound(ctx context.Context) (data []byte, ok bool) {
	select {
	case chunk := <-d.outbound:
		return chunk, true
	case <-d.closeCh:
		select {
		case chunk := <-d.outbound:
			return chunk, true
		default:
		}
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// PushInbound is the tunnel pump's half of Read: it delivers wire
// bytes to the handler. Called only by the pump goroutine, never
// concurrently with itself.
func (d *DetachedSocket) PushInbound(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	select {
	case d.inbound <- data:
		return nil
	case <-d.closeCh:
		return ErrSocketClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close idempotently tears down both directions. Safe to call from
// the handler goroutine, the tunnel pump goroutine, or both.
func (d *DetachedSocket) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.closeCh)
}

// Closed reports whether Close has already run.
func (d *DetachedSocket) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
