package bridge

import (
	"context"
	"errors"
	"io"

	"github.com/hnolan/httpbridge/internal/codec"
	"github.com/hnolan/httpbridge/internal/handler"
)

// wireResponseWriter is the bridge engine's handler.ResponseWriter: it
// turns Start/WriteChunk/End calls directly into wire frames via the
// connection's single writer goroutine.
type wireResponseWriter struct {
	c            *conn
	started      bool
	ended        bool
	detach       bool
	detachResult *handler.DetachedSocket
}

var errResponseNotStarted = errors.New("bridge: End called before Start")
var errResponseAlreadyStarted = errors.New("bridge: Start called more than once")

func (w *wireResponseWriter) Start(head codec.ResponseHead) error {
	if w.started {
		return errResponseAlreadyStarted
	}
	if err := w.c.send(codec.EncodeResponseStartDetach(head.Status, head.Headers, head.Detach)); err != nil {
		return err
	}
	w.started = true
	w.detach = head.Detach
	return nil
}

func (w *wireResponseWriter) WriteChunk(data []byte) error {
	if !w.started {
		return errResponseNotStarted
	}
	return w.c.sendChunk(codec.KindResponseChunk, data)
}

func (w *wireResponseWriter) End() (*handler.DetachedSocket, error) {
	if !w.started {
		return nil, errResponseNotStarted
	}
	if w.ended {
		return w.detachResult, nil
	}
	if err := w.c.send(codec.EncodeResponseEnd()); err != nil {
		return nil, err
	}
	w.ended = true
	if w.detach {
		w.detachResult = handler.NewDetachedSocket(0)
	}
	return w.detachResult, nil
}

// handleStreamed processes one RequestStart frame through to the
// matching RequestEnd, running the handler concurrently with reading
// further request-body frames off the wire (the point of streaming:
// the handler can act on early chunks before the body completes).
func (c *conn) handleStreamed(ctx context.Context, startPayload []byte) (*handler.DetachedSocket, error) {
	head, err := codec.DecodeRequestStart(startPayload)
	if err != nil {
		return nil, c.send(codec.EncodeResponse(synthesizeBadRequestForDecode(err)))
	}

	body := handler.NewBodyStream(4)
	rw := &wireResponseWriter{c: c}
	handlerErr := make(chan error, 1)

	go func() {
		if c.h.Streamed != nil {
			handlerErr <- c.h.Streamed(ctx, head, body, rw)
			return
		}
		full, err := body.ReadAll(ctx)
		if err != nil {
			handlerErr <- err
			return
		}
		respHead, respBody, _, err := c.h.Whole(ctx, head, full)
		if err != nil {
			handlerErr <- err
			return
		}
		if err := rw.Start(respHead); err != nil {
			handlerErr <- err
			return
		}
		if len(respBody) > 0 {
			if err := rw.WriteChunk(respBody); err != nil {
				handlerErr <- err
				return
			}
		}
		if _, err := rw.End(); err != nil {
			handlerErr <- err
		} else {
			handlerErr <- nil
		}
	}()

	received := 0
	for {
		payload, err := c.readFrame(false)
		if err != nil {
			body.Abort(err)
			<-handlerErr
			return nil, err
		}
		kind, err := codec.Classify(payload)
		if err != nil {
			body.Abort(err)
			<-handlerErr
			return nil, c.failRequest(rw, err)
		}
		switch kind {
		case codec.KindRequestChunk:
			data, err := codec.DecodeRequestChunk(payload, 0)
			if err != nil {
				body.Abort(err)
				<-handlerErr
				return nil, c.failRequest(rw, err)
			}
			received += len(data)
			if c.limits.BodyLimit > 0 && received > c.limits.BodyLimit {
				limitErr := codec.NewBodyLimitExceeded(received, c.limits.BodyLimit)
				body.Abort(limitErr)
				<-handlerErr
				if err := c.failRequest(rw, limitErr); err != nil {
					return nil, err
				}
				// The rest of this request's frames are still in flight;
				// there is no way to resynchronize, so close the stream.
				return nil, io.EOF
			}
			if err := body.Send(ctx, data); err != nil {
				<-handlerErr
				return nil, err
			}
		case codec.KindRequestEnd:
			if err := codec.DecodeRequestEnd(payload); err != nil {
				body.Abort(err)
				<-handlerErr
				return nil, c.failRequest(rw, err)
			}
			body.Close()
			err := <-handlerErr
			if err != nil {
				return nil, c.failRequest(rw, err)
			}
			if !rw.started {
				return nil, c.send(codec.EncodeResponse(synthesizeServerError("handler returned without starting a response")))
			}
			if !rw.ended {
				// A start frame went out with no end frame; the peer
				// cannot be resynchronized.
				return nil, newError(KindHandlerFailure, errors.New("bridge: handler returned without ending its response"), true)
			}
			return rw.detachResult, nil
		default:
			violation := errProtocolOutOfSequence(kind)
			body.Abort(violation)
			<-handlerErr
			return nil, c.failRequest(rw, violation)
		}
	}
}

// failRequest synthesizes the right response or closes the connection
// depending on whether a response-start frame has already gone out.
// Wire-level causes (malformed frames, limit overruns, protocol
// violations) become a 400; anything else is the handler's own failure
// and becomes a 500 with the raised description as its body.
func (c *conn) failRequest(rw *wireResponseWriter, cause error) error {
	if rw.started {
		// Post-response: the connection is unrecoverable.
		return cause
	}
	var bridgeErr *Error
	if errors.Is(cause, codec.ErrMalformed) || errors.Is(cause, codec.ErrLimitExceeded) || errors.As(cause, &bridgeErr) {
		return c.send(codec.EncodeResponse(synthesizeBadRequestForDecode(cause)))
	}
	return c.send(codec.EncodeResponse(synthesizeServerError(cause.Error())))
}
