package handler

import (
	"context"
	"errors"
	"io"
)

// ErrBodyAborted is what a BodyStream reader receives when the producer
// calls Abort with a nil error. An Abort with a specific cause (a
// malformed chunk frame, a protocol violation, the peer closing
// mid-request) delivers that cause instead.
var ErrBodyAborted = errors.New("handler: body stream aborted")

// BodyStream is a bounded single-producer/single-consumer channel of
// body chunks with an end-of-stream and error signal, used to hand a
// streamed request body to a handler without buffering the whole body
// in memory. Chunks are delivered exactly as they were sent, in order;
// they are neither split nor merged.
type BodyStream struct {
	chunks chan []byte
	errc   chan error
}

// NewBodyStream creates a stream with the given channel depth. A depth
// of 0 makes sends block until the consumer is ready, the strictest
// form of backpressure.
func NewBodyStream(depth int) *BodyStream {
	return &BodyStream{
		chunks: make(chan []byte, depth),
		errc:   make(chan error, 1),
	}
}

// Send delivers one chunk to the consumer, blocking if the channel is
// full (this is the backpressure point: the frame reader stops pulling
// further bytes off the wire while this call is blocked).
func (b *BodyStream) Send(ctx context.Context, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	select {
	case b.chunks <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals a clean end-of-stream; Next returns io.EOF once all
// already-queued chunks have been drained.
func (b *BodyStream) Close() {
	close(b.chunks)
}

// Abort signals the consumer that the body will never complete
// cleanly. Chunks already queued are still returned by Next; after
// them, that and every later Next call returns err as given
// (ErrBodyAborted when err is nil).
func (b *BodyStream) Abort(err error) {
	if err == nil {
		err = ErrBodyAborted
	}
	select {
	case b.errc <- err:
	default:
	}
	close(b.chunks)
}

// Next blocks for the next chunk, returning io.EOF when the producer
// closed cleanly, or the abort error if Abort was called.
func (b *BodyStream) Next(ctx context.Context) ([]byte, error) {
	select {
	case chunk, ok := <-b.chunks:
		if ok {
			return chunk, nil
		}
		select {
		case err := <-b.errc:
			b.errc <- err
			return nil, err
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReadAll drains the stream to completion, concatenating chunks. Used
// to adapt a streamed body into the inline (whole-body) handler path.
func (b *BodyStream) ReadAll(ctx context.Context) ([]byte, error) {
	var out []byte
	for {
		chunk, err := b.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
}

// OneShotBody returns a BodyStream that is already closed with body as
// its single chunk, used to adapt an inline request over a streamed
// handler.
func OneShotBody(body []byte) *BodyStream {
	bs := NewBodyStream(1)
	if len(body) > 0 {
		bs.chunks <- body
	}
	close(bs.chunks)
	return bs
}
