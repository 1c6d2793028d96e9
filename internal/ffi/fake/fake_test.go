package fake

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnolan/httpbridge/internal/ffi"
)

func TestStartProxyRequiresPositiveAbiVersion(t *testing.T) {
	p := New(0)
	_, _, err := p.StartProxy(context.Background(), ffi.StartConfig{}, nil)
	assert.ErrorIs(t, err, ffi.ErrNativeFailure)
}

func TestDeliverInvokesCallback(t *testing.T) {
	p := New(1)
	var got ffi.RequestFrame
	done := make(chan struct{})
	cb := func(f ffi.RequestFrame) { got = f; close(done) }

	h, _, err := p.StartProxy(context.Background(), ffi.StartConfig{}, cb)
	require.NoError(t, err)

	p.Deliver(h, ffi.RequestFrame{RequestID: 1, Payload: []byte("hello")})
	<-done
	assert.Equal(t, uint64(1), got.RequestID)
	assert.Equal(t, []byte("hello"), got.Payload)
}

func TestDeliverQueuesForPollWhenNoCallback(t *testing.T) {
	p := New(1)
	h, _, err := p.StartProxy(context.Background(), ffi.StartConfig{}, nil)
	require.NoError(t, err)

	p.Deliver(h, ffi.RequestFrame{RequestID: 7, Payload: []byte("x")})
	f, ok := p.PollRequestFrame(h, 1000)
	require.True(t, ok)
	assert.Equal(t, uint64(7), f.RequestID)
}

func TestPollRequestFrameTimesOut(t *testing.T) {
	p := New(1)
	h, _, err := p.StartProxy(context.Background(), ffi.StartConfig{}, nil)
	require.NoError(t, err)

	_, ok := p.PollRequestFrame(h, 20)
	assert.False(t, ok)
}

func TestPushResponseFrameAfterStopReturnsFalse(t *testing.T) {
	p := New(1)
	h, _, err := p.StartProxy(context.Background(), ffi.StartConfig{}, nil)
	require.NoError(t, err)
	p.StopProxy(h)

	ok := p.PushResponseFrame(h, 1, []byte("x"))
	assert.False(t, ok)
}

func TestNextResponseObservesPush(t *testing.T) {
	p := New(1)
	h, _, err := p.StartProxy(context.Background(), ffi.StartConfig{}, nil)
	require.NoError(t, err)

	ok := p.PushResponseFrame(h, 42, []byte("pong"))
	require.True(t, ok)

	reqID, payload, ok := p.NextResponse(h, time.Second)
	require.True(t, ok)
	assert.Equal(t, uint64(42), reqID)
	assert.Equal(t, []byte("pong"), payload)
}
