// Package direct implements the callback/queue-oriented transport
// engine: the native proxy delivers opaque request payloads keyed by
// a u64 request id instead of over a dedicated byte stream, and the
// engine pushes response payloads back through the same native
// collaborator. It shares the codec and the handler vocabulary with
// internal/bridge but keeps its own per-request state map, since one
// engine instance serves every request id seen for the lifetime of a
// single native proxy handle rather than one connection at a time.
package direct

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/hnolan/httpbridge/internal/codec"
	"github.com/hnolan/httpbridge/internal/ffi"
	"github.com/hnolan/httpbridge/internal/handler"
)

// Engine dispatches request frames delivered by a native proxy's
// callback or poll loop to a handler, keyed by request id.
type Engine struct {
	proxy  ffi.NativeProxy
	h      handler.Handler
	limits Limits
	log    *logrus.Entry

	handle atomic.Uint64 // ffi.Handle; 0 until Bind is called
	shards []shard
}

// NewEngine constructs an Engine bound to proxy. Bind must be called
// with the handle returned from StartProxy before any frame delivered
// through Callback/HandleFrame can push a response.
func NewEngine(proxy ffi.NativeProxy, h handler.Handler, limits Limits, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		proxy:  proxy,
		h:      h,
		limits: limits,
		log:    log,
		shards: newShards(),
	}
}

// Bind records the handle this engine's responses push against. Must
// be called once, after StartProxy returns successfully and before
// the native side can deliver any frame.
func (e *Engine) Bind(handle ffi.Handle) {
	e.handle.Store(uint64(handle))
}

func (e *Engine) push(requestID uint64, payload []byte) bool {
	h := ffi.Handle(e.handle.Load())
	ok := e.proxy.PushResponseFrame(h, requestID, payload)
	if !ok {
		// A push after the request's state has already been torn down is
		// a benign race, not a failure the caller should propagate.
		e.log.WithField("request_id", requestID).Debug("direct: push after state removal")
	}
	return ok
}

// Callback returns the ffi.Callback to register with StartProxy. An
// inline request runs on a goroutine of its own, so its handler never
// holds the calling thread (which may be a foreign, non-Go-scheduled
// thread). Every other frame is handled on the calling thread before
// the callback returns, so the frames of one request id reach its state
// in arrival order; a chunk arriving while the body channel is full
// blocks the caller until the handler drains it.
func (e *Engine) Callback() ffi.Callback {
	return func(frame ffi.RequestFrame) {
		e.dispatch(context.Background(), frame)
	}
}

// dispatch runs HandleFrame on a new goroutine for an inline request
// and on the calling goroutine for any other frame.
func (e *Engine) dispatch(ctx context.Context, frame ffi.RequestFrame) {
	if kind, err := codec.Classify(frame.Payload); err == nil &&
		(kind == codec.KindRequestInline || kind == codec.KindRequestInlineLegacy) {
		go e.HandleFrame(ctx, frame)
		return
	}
	e.HandleFrame(ctx, frame)
}

// RunPollLoop polls the native proxy in a loop until ctx is canceled,
// dispatching each delivered frame the same way Callback does. Used by
// native implementations that cannot register a direct callback.
func (e *Engine) RunPollLoop(ctx context.Context, timeout time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		frame, ok := e.proxy.PollRequestFrame(ffi.Handle(e.handle.Load()), timeout.Milliseconds())
		if !ok {
			continue
		}
		e.dispatch(ctx, frame)
	}
}

// HandleFrame dispatches one request-id-keyed payload: to a fresh
// handler invocation if no state exists for frame.RequestID yet, or
// feeding the existing per-request state's body/tunnel channel
// otherwise. Always frees frame's native-owned payload exactly once.
func (e *Engine) HandleFrame(ctx context.Context, frame ffi.RequestFrame) {
	defer e.proxy.FreeRequestPayload(frame)

	if e.limits.FrameLimit > 0 && len(frame.Payload) > e.limits.FrameLimit {
		limitErr := codec.NewBodyLimitExceeded(len(frame.Payload), e.limits.FrameLimit)
		if st, ok := e.load(frame.RequestID); ok {
			if body := st.bodyStream(); body != nil {
				body.Abort(limitErr)
			}
			if detach := st.detachedSocket(); detach != nil {
				detach.Close()
			}
		} else {
			respHead, respBody := synthesizeBadRequestForDecode(limitErr)
			e.push(frame.RequestID, codec.EncodeResponse(respHead, respBody))
		}
		e.delete(frame.RequestID)
		return
	}

	kind, err := codec.Classify(frame.Payload)
	if err != nil {
		e.log.WithError(err).WithField("request_id", frame.RequestID).Warn("direct: malformed frame")
		return
	}

	st, exists := e.load(frame.RequestID)
	if !exists {
		e.dispatchNew(ctx, frame.RequestID, kind, frame.Payload)
		return
	}
	e.feedExisting(ctx, frame.RequestID, kind, frame.Payload, st)
}

func (e *Engine) dispatchNew(ctx context.Context, requestID uint64, kind codec.FrameKind, payload []byte) {
	switch kind {
	case codec.KindRequestInlineLegacy, codec.KindRequestInline:
		e.dispatchInline(ctx, requestID, payload)
	case codec.KindRequestStart:
		e.dispatchStreamed(ctx, requestID, payload)
	default:
		// Chunk/end/tunnel frame with no matching state: the request
		// already completed (or never existed). Benign.
		e.log.WithField("request_id", requestID).WithField("kind", kind.String()).
			Warn("direct: frame for unknown request id")
	}
}

func (e *Engine) dispatchInline(ctx context.Context, requestID uint64, payload []byte) {
	head, body, err := codec.DecodeRequestInline(payload, e.limits.BodyLimit)
	if err != nil {
		respHead, respBody := synthesizeBadRequestForDecode(err)
		e.push(requestID, codec.EncodeResponse(respHead, respBody))
		return
	}

	respHead, respBody, detach, err := e.h.InvokeWhole(ctx, head, body)
	if err != nil {
		respHead, respBody = synthesizeServerError(err.Error())
		e.push(requestID, codec.EncodeResponse(respHead, respBody))
		return
	}
	if respHead.Detach && detach != nil {
		// Inbound tunnel frames for this id need the state registered
		// before the native side can start delivering them, so it is
		// stored before the response goes out.
		e.store(requestID, &requestState{detach: detach})
	}
	e.push(requestID, codec.EncodeResponse(respHead, respBody))
	if respHead.Detach && detach != nil {
		e.runTunnel(requestID, detach)
	}
}

func (e *Engine) dispatchStreamed(ctx context.Context, requestID uint64, payload []byte) {
	head, err := codec.DecodeRequestStart(payload)
	if err != nil {
		respHead, respBody := synthesizeBadRequestForDecode(err)
		e.push(requestID, codec.EncodeResponse(respHead, respBody))
		return
	}

	body := handler.NewBodyStream(4)
	rw := &responseWriter{e: e, requestID: requestID}
	st := &requestState{body: body, rw: rw}
	e.store(requestID, st)

	go e.runStreamedHandler(ctx, requestID, head, body, rw)
}

func (e *Engine) runStreamedHandler(ctx context.Context, requestID uint64, head codec.RequestHead, body *handler.BodyStream, rw *responseWriter) {
	var err error
	if e.h.Streamed != nil {
		err = e.h.Streamed(ctx, head, body, rw)
	} else {
		var full []byte
		full, err = body.ReadAll(ctx)
		if err == nil {
			var respHead codec.ResponseHead
			var respBody []byte
			respHead, respBody, _, err = e.h.Whole(ctx, head, full)
			if err == nil {
				if serr := rw.Start(respHead); serr != nil {
					err = serr
				} else {
					if len(respBody) > 0 {
						_ = rw.WriteChunk(respBody)
					}
					_, err = rw.End()
				}
			}
		}
	}

	if err != nil && !rw.started {
		var respHead codec.ResponseHead
		var respBody []byte
		if errors.Is(err, codec.ErrLimitExceeded) || errors.Is(err, codec.ErrMalformed) {
			respHead, respBody = synthesizeBadRequestForDecode(err)
		} else {
			respHead, respBody = synthesizeServerError(err.Error())
		}
		e.push(requestID, codec.EncodeResponse(respHead, respBody))
		e.delete(requestID)
		return
	}
	if err != nil {
		e.log.WithError(err).WithField("request_id", requestID).Warn("direct: post-response handler failure")
		e.delete(requestID)
		return
	}

	if !rw.started {
		respHead, respBody := synthesizeServerError("handler returned without starting a response")
		e.push(requestID, codec.EncodeResponse(respHead, respBody))
		e.delete(requestID)
		return
	}
	if !rw.ended {
		e.log.WithField("request_id", requestID).Warn("direct: handler returned without ending its response")
		e.delete(requestID)
		return
	}

	if rw.detach && rw.detachResult != nil {
		if st, ok := e.load(requestID); ok {
			st.promote(rw.detachResult)
		}
		e.runTunnel(requestID, rw.detachResult)
		return
	}
	e.delete(requestID)
}

func (e *Engine) feedExisting(ctx context.Context, requestID uint64, kind codec.FrameKind, payload []byte, st *requestState) {
	switch kind {
	case codec.KindRequestChunk:
		body := st.bodyStream()
		if body == nil {
			return
		}
		data, err := codec.DecodeRequestChunk(payload, 0)
		if err != nil {
			body.Abort(err)
			return
		}
		if sum := st.addReceived(len(data)); e.limits.BodyLimit > 0 && sum > e.limits.BodyLimit {
			body.Abort(codec.NewBodyLimitExceeded(sum, e.limits.BodyLimit))
			return
		}
		// data is a view into the native payload, which is freed when
		// HandleFrame returns; the body channel may outlive that.
		_ = body.Send(ctx, append([]byte(nil), data...))
	case codec.KindRequestEnd:
		if body := st.bodyStream(); body != nil {
			body.Close()
		}
	case codec.KindTunnelChunk:
		detach := st.detachedSocket()
		if detach == nil {
			return
		}
		data, err := codec.DecodeTunnelChunk(payload, e.limits.FrameLimit)
		if err != nil {
			return
		}
		_ = detach.PushInbound(ctx, append([]byte(nil), data...))
	case codec.KindTunnelClose:
		if detach := st.detachedSocket(); detach != nil {
			detach.Close()
		}
		e.delete(requestID)
	default:
		e.log.WithField("request_id", requestID).WithField("kind", kind.String()).
			Warn("direct: unexpected frame for in-flight request")
	}
}

// runTunnel promotes a completed request's state into a tunnel: a
// goroutine drains detach's outbound queue and pushes tunnel-chunk
// frames for requestID until detach closes, at which point a
// tunnel-close frame is pushed and the request's state is removed.
func (e *Engine) runTunnel(requestID uint64, detach *handler.DetachedSocket) {
	ctx := context.Background()
	for {
		data, ok := detach.NextOutbound(ctx)
		if !ok {
			e.push(requestID, codec.EncodeTunnelClose())
			e.delete(requestID)
			return
		}
		e.push(requestID, codec.EncodeTunnelChunk(data))
	}
}
