package supervisor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/hnolan/httpbridge/internal/codec"
	"github.com/hnolan/httpbridge/internal/ffi"
	"github.com/hnolan/httpbridge/internal/ffi/fake"
	"github.com/hnolan/httpbridge/internal/handler"
)

func echoHandler() handler.Handler {
	return handler.Handler{
		Whole: func(ctx context.Context, head codec.RequestHead, body []byte) (codec.ResponseHead, []byte, *handler.DetachedSocket, error) {
			return codec.ResponseHead{Status: 200}, body, nil, nil
		},
	}
}

func testConfig(mode TransportMode) Config {
	cfg := DefaultConfig()
	cfg.TransportMode = mode
	cfg.InstallSignalHandlers = false
	cfg.HTTP3 = false
	return cfg
}

// TestSupervisorStreamTransportRoundTrip boots a stream-transport
// supervisor against the fake native proxy, dials the bound listener
// directly (standing in for the native side's loopback connection),
// and confirms a request round trips through internal/bridge.Serve.
func TestSupervisorStreamTransportRoundTrip(t *testing.T) {
	proxy := fake.New(1)
	sup := New(testConfig(TransportStream), proxy, echoHandler(), nil, nil)

	rp, err := sup.Start(context.Background())
	require.NoError(t, err)
	defer sup.Stop(true)

	addr := sup.backendFor
	require.NotEmpty(t, addr)

	network := "unix"
	if _, _, splitErr := net.SplitHostPort(addr); splitErr == nil {
		network = "tcp"
	}

	conn, err := net.Dial(network, addr)
	require.NoError(t, err)
	defer conn.Close()

	payload := codec.EncodeRequestInline(codec.RequestHead{
		Method: "GET",
		Scheme: "http",
		Path:   "/echo",
	}, []byte("hello"))
	require.NoError(t, codec.WriteFrame(conn, payload, 4096))

	respPayload, err := codec.ReadFrame(conn, 64<<20)
	require.NoError(t, err)
	respHead, respBody, err := codec.DecodeResponse(respPayload, 32<<20)
	require.NoError(t, err)
	require.EqualValues(t, 200, respHead.Status)
	require.Equal(t, "hello", string(respBody))

	require.NotZero(t, rp.BoundPort)
}

// TestSupervisorCallbackTransportRoundTrip exercises the direct/
// callback path: the fake proxy's Deliver stands in for a native call
// into the registered callback, and NextResponse observes what the
// direct engine pushed back.
func TestSupervisorCallbackTransportRoundTrip(t *testing.T) {
	proxy := fake.New(1)
	sup := New(testConfig(TransportCallback), proxy, echoHandler(), nil, nil)

	_, err := sup.Start(context.Background())
	require.NoError(t, err)
	defer sup.Stop(true)

	payload := codec.EncodeRequestInline(codec.RequestHead{
		Method: "GET",
		Scheme: "http",
		Path:   "/echo",
	}, []byte("world"))

	proxy.Deliver(sup.handle, ffi.RequestFrame{RequestID: 1, Payload: payload})

	_, respPayload, ok := proxy.NextResponse(sup.handle, time.Second)
	require.True(t, ok)
	respHead, respBody, err := codec.DecodeResponse(respPayload, 32<<20)
	require.NoError(t, err)
	require.EqualValues(t, 200, respHead.Status)
	require.Equal(t, "world", string(respBody))
}

// TestSupervisorStopIsIdempotent confirms a second Stop call is a
// no-op that returns the same result as the first.
func TestSupervisorStopIsIdempotent(t *testing.T) {
	proxy := fake.New(1)
	sup := New(testConfig(TransportStream), proxy, echoHandler(), nil, nil)

	_, err := sup.Start(context.Background())
	require.NoError(t, err)

	err1 := sup.Stop(true)
	err2 := sup.Stop(true)
	require.NoError(t, err1)
	require.Equal(t, err1, err2)
}

// TestSupervisorGracefulShutdownWaitsThenForces simulates a connection
// that never finishes (connGroup never reaches zero) and confirms
// Stop(false) proceeds once the fake clock's forceShutdownDeadline
// elapses, rather than blocking forever.
func TestSupervisorGracefulShutdownWaitsThenForces(t *testing.T) {
	proxy := fake.New(1)
	clock := clockwork.NewFakeClock()

	sup := New(testConfig(TransportStream), proxy, echoHandler(), nil, clock)
	_, err := sup.Start(context.Background())
	require.NoError(t, err)

	sup.connGroup.Add(1)

	done := make(chan error, 1)
	go func() { done <- sup.Stop(false) }()

	clock.BlockUntil(1)
	clock.Advance(forceShutdownDeadline)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop within the forced-shutdown window")
	}

	sup.connGroup.Done()
}

// TestSupervisorRejectsZeroAbiVersion confirms Start fails fast when
// the native side reports an unusable ABI version, before any other
// native entry point is touched.
func TestSupervisorRejectsZeroAbiVersion(t *testing.T) {
	proxy := fake.New(0)
	sup := New(testConfig(TransportStream), proxy, echoHandler(), nil, nil)

	_, err := sup.Start(context.Background())
	require.ErrorIs(t, err, ffi.ErrNativeFailure)
}

// TestSupervisorDisablesHTTP3WhenInsecure confirms New drops
// http3=true when secure=false, since HTTP/3 cannot run without TLS.
func TestSupervisorDisablesHTTP3WhenInsecure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Secure = false
	cfg.HTTP3 = true

	sup := New(cfg, fake.New(1), echoHandler(), nil, nil)
	require.False(t, sup.cfg.HTTP3)
}

// TestProbeDualStackLoopbackPortBindsSamePort confirms the dual-stack
// helper lands IPv4 and IPv6 loopback listeners on one shared port.
func TestProbeDualStackLoopbackPortBindsSamePort(t *testing.T) {
	v4, v6, err := probeDualStackLoopbackPort(context.Background())
	if err != nil {
		t.Skipf("dual-stack loopback unavailable here: %v", err)
	}
	defer v4.Close()
	defer v6.Close()
	require.Equal(t, v4.Addr().(*net.TCPAddr).Port, v6.Addr().(*net.TCPAddr).Port)
}
