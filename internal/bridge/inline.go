package bridge

import (
	"context"

	"github.com/hnolan/httpbridge/internal/codec"
	"github.com/hnolan/httpbridge/internal/handler"
)

// handleInline processes one RequestInline/RequestInlineLegacy frame
// end to end: decode, invoke (adapting a Streamed handler over a
// one-shot body if necessary), and write exactly one response frame.
// It returns a non-nil detach socket when the response asked to
// upgrade the connection into a tunnel.
func (c *conn) handleInline(ctx context.Context, payload []byte) (*handler.DetachedSocket, error) {
	head, body, err := codec.DecodeRequestInline(payload, c.limits.BodyLimit)
	if err != nil {
		return nil, c.send(codec.EncodeResponse(synthesizeBadRequestForDecode(err)))
	}

	respHead, respBody, detach, err := c.h.InvokeWhole(ctx, head, body)
	if err != nil {
		return nil, c.send(codec.EncodeResponse(synthesizeServerError(err.Error())))
	}

	if err := c.send(codec.EncodeResponse(respHead, respBody)); err != nil {
		return nil, err
	}
	if respHead.Detach {
		return detach, nil
	}
	return nil, nil
}
