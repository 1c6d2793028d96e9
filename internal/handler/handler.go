// Package handler holds the vocabulary shared by the bridge stream
// engine and the direct callback engine: the handler invocation
// contract, the streamed request body, and the post-detach tunnel
// socket. Neither engine owns these types, so neither duplicates them.
package handler

import (
	"context"
	"errors"

	"github.com/hnolan/httpbridge/internal/codec"
)

// WholeFunc handles a request whose entire body is already available,
// returning a complete response in one shot. detach is non-nil only
// when head.Detach was set on the returned response.
type WholeFunc func(ctx context.Context, head codec.RequestHead, body []byte) (respHead codec.ResponseHead, respBody []byte, detach *DetachedSocket, err error)

// StreamedFunc handles a request whose body arrives incrementally. The
// handler must call rw.Start exactly once (before any WriteChunk) and
// rw.End exactly once when done; returning without calling End is a
// programming error the engine treats as HandlerFailure.
type StreamedFunc func(ctx context.Context, head codec.RequestHead, body *BodyStream, rw ResponseWriter) error

// ResponseWriter is the streamed handler's half of response emission.
// It mirrors the wire's start/chunk/end sequencing: exactly one Start,
// zero or more WriteChunk, exactly one End.
type ResponseWriter interface {
	// Start emits the response head. Must be called before WriteChunk
	// or End. Calling it more than once is a programming error.
	Start(head codec.ResponseHead) error
	// WriteChunk emits one response body chunk. Valid only after Start
	// and before End.
	WriteChunk(data []byte) error
	// End finalizes the response. If the head passed to Start had
	// Detach set, the returned socket is the handler's tunnel handle;
	// otherwise it is nil.
	End() (*DetachedSocket, error)
}

// Handler is a union: exactly one of Whole or Streamed is set. The engine picks whichever path the incoming frame
// shape calls for, adapting the other kind of handler over a one-shot
// or fully-drained body as needed.
type Handler struct {
	Whole    WholeFunc
	Streamed StreamedFunc
}

// IsStreamed reports whether this handler's native shape is streamed.
func (h Handler) IsStreamed() bool { return h.Streamed != nil }

// InvokeWhole adapts any Handler to the whole-body contract, draining
// a streamed handler's emitted frames into a single response if
// necessary (used when the incoming frame was RequestInline but the
// configured handler is Streamed).
func (h Handler) InvokeWhole(ctx context.Context, head codec.RequestHead, body []byte) (codec.ResponseHead, []byte, *DetachedSocket, error) {
	if h.Whole != nil {
		return h.Whole(ctx, head, body)
	}
	rw := &bufferingResponseWriter{}
	if err := h.Streamed(ctx, head, OneShotBody(body), rw); err != nil {
		return codec.ResponseHead{}, nil, nil, err
	}
	return rw.head, rw.body, rw.detach, nil
}

// bufferingResponseWriter adapts a Streamed handler's start/chunk/end
// calls into a single accumulated response, used by InvokeWhole.
type bufferingResponseWriter struct {
	started bool
	head    codec.ResponseHead
	body    []byte
	detach  *DetachedSocket
}

func (w *bufferingResponseWriter) Start(head codec.ResponseHead) error {
	if w.started {
		return errors.New("handler: Start called more than once")
	}
	w.started = true
	w.head = head
	return nil
}

func (w *bufferingResponseWriter) WriteChunk(data []byte) error {
	w.body = append(w.body, data...)
	return nil
}

func (w *bufferingResponseWriter) End() (*DetachedSocket, error) {
	if w.head.Detach {
		w.detach = NewDetachedSocket(0)
	}
	return w.detach, nil
}
