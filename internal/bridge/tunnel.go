package bridge

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/hnolan/httpbridge/internal/codec"
	"github.com/hnolan/httpbridge/internal/handler"
)

// runTunnel pumps opaque bytes between the wire and detach after a
// response carried Detach: frames arriving on the wire become
// PushInbound calls; chunks the handler writes to detach become
// outbound tunnel-chunk frames. Either direction's close, or the
// underlying stream ending, tears down both.
func (c *conn) runTunnel(ctx context.Context, detach *handler.DetachedSocket) error {
	defer detach.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.pumpOutbound(gctx, detach) })

	inboundErr := c.pumpInbound(detach)
	detach.Close()
	outboundErr := g.Wait()

	if inboundErr != nil && !errors.Is(inboundErr, io.EOF) {
		return inboundErr
	}
	return outboundErr
}

// pumpInbound reads tunnel-chunk/tunnel-close frames off the wire and
// delivers them to the handler side of detach.
func (c *conn) pumpInbound(detach *handler.DetachedSocket) error {
	for {
		payload, err := c.readFrame(false)
		if err != nil {
			return err
		}
		kind, err := codec.Classify(payload)
		if err != nil {
			return err
		}
		switch kind {
		case codec.KindTunnelChunk:
			data, err := codec.DecodeTunnelChunk(payload, c.limits.FrameLimit)
			if err != nil {
				return err
			}
			if err := detach.PushInbound(context.Background(), data); err != nil {
				if errors.Is(err, handler.ErrSocketClosed) {
					return io.EOF
				}
				return err
			}
		case codec.KindTunnelClose:
			if err := codec.DecodeTunnelClose(payload); err != nil {
				return err
			}
			return io.EOF
		default:
			return errProtocolOutOfSequence(kind)
		}
	}
}

// pumpOutbound drains handler-written chunks from detach and writes
// them as tunnel-chunk frames, sending a tunnel-close frame once
// detach is closed.
func (c *conn) pumpOutbound(ctx context.Context, detach *handler.DetachedSocket) error {
	for {
		data, ok := detach.NextOutbound(ctx)
		if !ok {
			return c.send(codec.EncodeTunnelClose())
		}
		if err := c.sendChunk(codec.KindTunnelChunk, data); err != nil {
			return err
		}
	}
}
