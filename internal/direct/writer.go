package direct

import (
	"errors"

	"github.com/hnolan/httpbridge/internal/codec"
	"github.com/hnolan/httpbridge/internal/handler"
)

var (
	errResponseNotStarted     = errors.New("direct: End called before Start")
	errResponseAlreadyStarted = errors.New("direct: Start called more than once")
)

// responseWriter is the direct engine's handler.ResponseWriter: every
// Start/WriteChunk/End call pushes one response payload for requestID
// through the engine's push primitive instead of writing to a byte
// stream.
type responseWriter struct {
	e            *Engine
	requestID    uint64
	started      bool
	ended        bool
	detach       bool
	detachResult *handler.DetachedSocket
}

func (w *responseWriter) Start(head codec.ResponseHead) error {
	if w.started {
		return errResponseAlreadyStarted
	}
	w.e.push(w.requestID, codec.EncodeResponseStartDetach(head.Status, head.Headers, head.Detach))
	w.started = true
	w.detach = head.Detach
	return nil
}

func (w *responseWriter) WriteChunk(data []byte) error {
	if !w.started {
		return errResponseNotStarted
	}
	w.e.push(w.requestID, codec.EncodeResponseChunk(data))
	return nil
}

func (w *responseWriter) End() (*handler.DetachedSocket, error) {
	if !w.started {
		return nil, errResponseNotStarted
	}
	if w.ended {
		return w.detachResult, nil
	}
	w.e.push(w.requestID, codec.EncodeResponseEnd())
	w.ended = true
	if w.detach {
		w.detachResult = handler.NewDetachedSocket(0)
	}
	return w.detachResult, nil
}
