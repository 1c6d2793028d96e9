// Package bridge implements the stream-oriented transport engine: one
// connection carries a strictly sequential run of request/response
// lifecycles, framed per internal/codec, and optionally ends in a
// detached tunnel after a protocol-upgrade response.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hnolan/httpbridge/internal/codec"
	"github.com/hnolan/httpbridge/internal/handler"
)

// Limits bounds the per-connection body, frame, and coalescing sizes.
type Limits struct {
	BodyLimit         int
	FrameLimit        int
	CoalesceThreshold int
}

// DefaultLimits returns the stock 32 MiB body / 64 MiB frame bounds.
func DefaultLimits() Limits {
	return Limits{
		BodyLimit:         32 << 20,
		FrameLimit:        64 << 20,
		CoalesceThreshold: codec.DefaultCoalesceThreshold,
	}
}

// Stream is what Serve needs from the underlying connection: framed
// byte I/O plus, where available, read-deadline support for the
// initial-frame idle timeout (net.Conn satisfies this already).
type Stream interface {
	io.Reader
	io.Writer
}

type deadlineSetter interface {
	SetReadDeadline(t time.Time) error
}

// writeJob is either a pre-encoded frame payload, or a chunk destined
// for the coalescing-aware WriteChunkFrame path.
type writeJob struct {
	payload   []byte
	chunkKind codec.FrameKind
	chunkData []byte
	isChunk   bool
}

func (j writeJob) write(w io.Writer, threshold int) error {
	if j.isChunk {
		return codec.WriteChunkFrame(w, j.chunkKind, j.chunkData, threshold)
	}
	return codec.WriteFrame(w, j.payload, threshold)
}

// conn holds the state of one bridge connection's serve loop.
type conn struct {
	stream     Stream
	h          handler.Handler
	limits     Limits
	idle       time.Duration
	log        *logrus.Entry
	writeCh    chan writeJob
	writeErrCh chan error
}

// Serve drives one bridge connection to completion: it returns when
// the stream ends cleanly, when an unrecoverable frame-protocol error
// forces the connection closed, or when a write fails. ctx is passed to
// the handler and the tunnel pump; canceling it does not interrupt a
// frame read that is already blocked.
func Serve(ctx context.Context, stream Stream, h handler.Handler, limits Limits, idleTimeout time.Duration, log *logrus.Entry) error {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &conn{
		stream:     stream,
		h:          h,
		limits:     limits,
		idle:       idleTimeout,
		log:        log,
		writeCh:    make(chan writeJob, 8),
		writeErrCh: make(chan error, 1),
	}

	writerDone := make(chan struct{})
	go c.runWriter(writerDone)

	err := c.serveLoop(ctx)

	close(c.writeCh)
	<-writerDone

	if err == io.EOF {
		return nil
	}
	return err
}

// runWriter is the connection's single writer goroutine: every frame
// destined for the wire, regardless of which goroutine produced it
// (the main read loop, or a streamed handler's ResponseWriter),
// passes through here so writes are never interleaved mid-frame.
func (c *conn) runWriter(done chan struct{}) {
	defer close(done)
	for job := range c.writeCh {
		if err := job.write(c.stream, c.limits.CoalesceThreshold); err != nil {
			select {
			case c.writeErrCh <- err:
			default:
			}
			// Keep draining so producers blocked on a full channel don't
			// leak, but stop attempting further writes.
			for range c.writeCh {
			}
			return
		}
	}
}

func (c *conn) send(payload []byte) error {
	select {
	case c.writeCh <- writeJob{payload: payload}:
		return nil
	case err := <-c.writeErrCh:
		c.writeErrCh <- err
		return err
	}
}

func (c *conn) sendChunk(kind codec.FrameKind, data []byte) error {
	select {
	case c.writeCh <- writeJob{isChunk: true, chunkKind: kind, chunkData: data}:
		return nil
	case err := <-c.writeErrCh:
		c.writeErrCh <- err
		return err
	}
}

// serveLoop is the per-connection request/response/tunnel dispatch.
func (c *conn) serveLoop(ctx context.Context) error {
	for {
		payload, err := c.readFrame(true)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// Idle timeout on the initial frame read: clean close.
				return io.EOF
			}
			if errors.Is(err, codec.ErrLimitExceeded) {
				// Frame too large: synthesize a 400, then close — the
				// stream position is past a length prefix whose payload
				// was never read, so recovery is impossible.
				if serr := c.send(codec.EncodeResponse(synthesizeBadRequestForDecode(err))); serr != nil {
					return serr
				}
			}
			return err
		}

		kind, err := codec.Classify(payload)
		if err != nil {
			if serr := c.send(codec.EncodeResponse(synthesizeBadRequestForDecode(err))); serr != nil {
				return serr
			}
			continue
		}

		switch kind {
		case codec.KindRequestInlineLegacy, codec.KindRequestInline:
			detach, err := c.handleInline(ctx, payload)
			if err != nil {
				return err
			}
			if detach != nil {
				return c.runTunnel(ctx, detach)
			}
		case codec.KindRequestStart:
			detach, err := c.handleStreamed(ctx, payload)
			if err != nil {
				return err
			}
			if detach != nil {
				return c.runTunnel(ctx, detach)
			}
		default:
			if serr := c.send(codec.EncodeResponse(synthesizeBadRequestForDecode(errProtocolOutOfSequence(kind)))); serr != nil {
				return serr
			}
		}
	}
}

func (c *conn) readFrame(initial bool) ([]byte, error) {
	if initial && c.idle > 0 {
		if ds, ok := c.stream.(deadlineSetter); ok {
			_ = ds.SetReadDeadline(time.Now().Add(c.idle))
			defer ds.SetReadDeadline(time.Time{})
		}
	}
	return codec.ReadFrame(c.stream, c.limits.FrameLimit)
}

func errProtocolOutOfSequence(kind codec.FrameKind) error {
	return newError(KindProtocolViolation, fmt.Errorf("bridge: unexpected %s frame to start a request", kind), false)
}

func synthesizeBadRequestForDecode(err error) (codec.ResponseHead, []byte) {
	var limitErr *codec.LimitExceededError
	if errors.As(err, &limitErr) {
		return synthesizeBadRequest(invalidRequestBody("body exceeds configured limit", limitErr.Declared))
	}
	if errors.Is(err, codec.ErrMalformed) {
		return synthesizeBadRequest("invalid bridge request: " + err.Error())
	}
	var bridgeErr *Error
	if errors.As(err, &bridgeErr) {
		return synthesizeBadRequest("invalid bridge request: " + bridgeErr.Error())
	}
	return synthesizeBadRequest("invalid bridge request: " + err.Error())
}
