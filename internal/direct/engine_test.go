package direct

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hnolan/httpbridge/internal/codec"
	"github.com/hnolan/httpbridge/internal/ffi"
	"github.com/hnolan/httpbridge/internal/ffi/fake"
	"github.com/hnolan/httpbridge/internal/handler"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func echoWhole() handler.Handler {
	return handler.Handler{
		Whole: func(ctx context.Context, head codec.RequestHead, body []byte) (codec.ResponseHead, []byte, *handler.DetachedSocket, error) {
			return codec.ResponseHead{Status: 200}, append([]byte("echo:"), body...), nil, nil
		},
	}
}

func newBoundEngine(t *testing.T, proxy *fake.Proxy, h handler.Handler) (*Engine, ffi.Handle) {
	t.Helper()
	e := NewEngine(proxy, h, DefaultLimits(), nil)
	handle, _, err := proxy.StartProxy(context.Background(), ffi.StartConfig{}, e.Callback())
	require.NoError(t, err)
	e.Bind(handle)
	return e, handle
}

func TestDirectEngineInlineRoundTrip(t *testing.T) {
	proxy := fake.New(1)
	_, handle := newBoundEngine(t, proxy, echoWhole())

	payload := codec.EncodeRequestInline(codec.RequestHead{Method: "GET", Path: "/ping"}, []byte("hi"))
	proxy.Deliver(handle, ffi.RequestFrame{RequestID: 1, Payload: payload})

	_, respPayload, ok := proxy.NextResponse(handle, time.Second)
	require.True(t, ok)
	head, body, err := codec.DecodeResponse(respPayload, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(200), head.Status)
	assert.Equal(t, []byte("echo:hi"), body)
}

func TestDirectEngineStreamedRequestConcatenatesChunks(t *testing.T) {
	proxy := fake.New(1)
	var gotBody []byte
	h := handler.Handler{
		Streamed: func(ctx context.Context, head codec.RequestHead, body *handler.BodyStream, rw handler.ResponseWriter) error {
			full, err := body.ReadAll(ctx)
			if err != nil {
				return err
			}
			gotBody = full
			if err := rw.Start(codec.ResponseHead{Status: 200}); err != nil {
				return err
			}
			_, err = rw.End()
			return err
		},
	}
	_, handle := newBoundEngine(t, proxy, h)

	proxy.Deliver(handle, ffi.RequestFrame{RequestID: 5, Payload: codec.EncodeRequestStart(codec.RequestHead{Method: "POST"})})
	proxy.Deliver(handle, ffi.RequestFrame{RequestID: 5, Payload: codec.EncodeRequestChunk([]byte("ab"))})
	proxy.Deliver(handle, ffi.RequestFrame{RequestID: 5, Payload: codec.EncodeRequestChunk([]byte("cd"))})
	proxy.Deliver(handle, ffi.RequestFrame{RequestID: 5, Payload: codec.EncodeRequestEnd()})

	_, startPayload, ok := proxy.NextResponse(handle, time.Second)
	require.True(t, ok)
	startHead, err := codec.DecodeResponseStart(startPayload)
	require.NoError(t, err)
	assert.Equal(t, uint16(200), startHead.Status)

	_, endPayload, ok := proxy.NextResponse(handle, time.Second)
	require.True(t, ok)
	require.NoError(t, codec.DecodeResponseEnd(endPayload))

	assert.Equal(t, []byte("abcd"), gotBody)
}

func TestDirectEngineConcurrentRequestIdsDoNotCrossTalk(t *testing.T) {
	proxy := fake.New(1)
	h := handler.Handler{
		Whole: func(ctx context.Context, head codec.RequestHead, body []byte) (codec.ResponseHead, []byte, *handler.DetachedSocket, error) {
			return codec.ResponseHead{Status: 200}, append([]byte(head.Path+":"), body...), nil, nil
		},
	}
	_, handle := newBoundEngine(t, proxy, h)

	proxy.Deliver(handle, ffi.RequestFrame{RequestID: 7, Payload: codec.EncodeRequestInline(codec.RequestHead{Path: "/a"}, []byte("x"))})
	proxy.Deliver(handle, ffi.RequestFrame{RequestID: 8, Payload: codec.EncodeRequestInline(codec.RequestHead{Path: "/b"}, []byte("y"))})

	seen := map[uint64][]byte{}
	for i := 0; i < 2; i++ {
		reqID, payload, ok := proxy.NextResponse(handle, time.Second)
		require.True(t, ok)
		_, body, err := codec.DecodeResponse(payload, 0)
		require.NoError(t, err)
		seen[reqID] = body
	}
	assert.Equal(t, []byte("/a:x"), seen[7])
	assert.Equal(t, []byte("/b:y"), seen[8])
}

func TestDirectEngineOverLimitBodySynthesizes400(t *testing.T) {
	proxy := fake.New(1)
	limits := Limits{BodyLimit: 4, FrameLimit: 1 << 20}
	e := NewEngine(proxy, echoWhole(), limits, nil)
	handle, _, err := proxy.StartProxy(context.Background(), ffi.StartConfig{}, e.Callback())
	require.NoError(t, err)
	e.Bind(handle)

	payload := codec.EncodeRequestInline(codec.RequestHead{}, []byte("toolongbody"))
	proxy.Deliver(handle, ffi.RequestFrame{RequestID: 1, Payload: payload})

	_, respPayload, ok := proxy.NextResponse(handle, time.Second)
	require.True(t, ok)
	head, body, err := codec.DecodeResponse(respPayload, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(400), head.Status)
	assert.Contains(t, string(body), "invalid bridge request:")
}

func TestDirectEngineChunkWithoutStateIsDropped(t *testing.T) {
	proxy := fake.New(1)
	_, handle := newBoundEngine(t, proxy, echoWhole())

	proxy.Deliver(handle, ffi.RequestFrame{RequestID: 99, Payload: codec.EncodeRequestChunk([]byte("x"))})

	_, _, ok := proxy.NextResponse(handle, 50*time.Millisecond)
	assert.False(t, ok)
}

func TestDirectEngineStreamedBodyOverCumulativeLimit(t *testing.T) {
	proxy := fake.New(1)
	h := handler.Handler{
		Streamed: func(ctx context.Context, head codec.RequestHead, body *handler.BodyStream, rw handler.ResponseWriter) error {
			_, err := body.ReadAll(ctx)
			return err
		},
	}
	e := NewEngine(proxy, h, Limits{BodyLimit: 3, FrameLimit: 1 << 20}, nil)
	handle, _, err := proxy.StartProxy(context.Background(), ffi.StartConfig{}, e.Callback())
	require.NoError(t, err)
	e.Bind(handle)

	proxy.Deliver(handle, ffi.RequestFrame{RequestID: 2, Payload: codec.EncodeRequestStart(codec.RequestHead{Method: "POST"})})
	proxy.Deliver(handle, ffi.RequestFrame{RequestID: 2, Payload: codec.EncodeRequestChunk([]byte("ab"))})
	proxy.Deliver(handle, ffi.RequestFrame{RequestID: 2, Payload: codec.EncodeRequestChunk([]byte("cd"))})

	_, respPayload, ok := proxy.NextResponse(handle, time.Second)
	require.True(t, ok)
	head, body, err := codec.DecodeResponse(respPayload, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(400), head.Status)
	assert.Contains(t, string(body), "invalid bridge request:")
	assert.Contains(t, string(body), "4")
}

func TestDirectEngineInlineUpgradePromotesToTunnel(t *testing.T) {
	proxy := fake.New(1)
	sock := handler.NewDetachedSocket(4)
	h := handler.Handler{
		Whole: func(ctx context.Context, head codec.RequestHead, body []byte) (codec.ResponseHead, []byte, *handler.DetachedSocket, error) {
			go func() {
				in, err := sock.Read(context.Background())
				if err != nil {
					return
				}
				if string(in) == "ping" {
					_ = sock.Write(context.Background(), []byte("pong"))
				}
			}()
			return codec.ResponseHead{Status: 101, Detach: true}, nil, sock, nil
		},
	}
	_, handle := newBoundEngine(t, proxy, h)

	proxy.Deliver(handle, ffi.RequestFrame{RequestID: 3, Payload: codec.EncodeRequestInline(codec.RequestHead{Method: "GET", Path: "/ws"}, nil)})

	_, respPayload, ok := proxy.NextResponse(handle, time.Second)
	require.True(t, ok)
	head, _, err := codec.DecodeResponse(respPayload, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(101), head.Status)
	assert.True(t, head.Detach)

	proxy.Deliver(handle, ffi.RequestFrame{RequestID: 3, Payload: codec.EncodeTunnelChunk([]byte("ping"))})

	_, chunkPayload, ok := proxy.NextResponse(handle, time.Second)
	require.True(t, ok)
	data, err := codec.DecodeTunnelChunk(chunkPayload, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), data)

	proxy.Deliver(handle, ffi.RequestFrame{RequestID: 3, Payload: codec.EncodeTunnelClose()})

	// The inbound tunnel-close makes the engine close the detached
	// socket, and its tunnel pump then pushes its own tunnel-close back
	// to the native side.
	_, closePayload, ok := proxy.NextResponse(handle, time.Second)
	require.True(t, ok)
	require.NoError(t, codec.DecodeTunnelClose(closePayload))
}
