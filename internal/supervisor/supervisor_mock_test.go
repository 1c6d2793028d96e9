package supervisor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hnolan/httpbridge/internal/ffi"
)

// TestSupervisorCallsAbiVersionBeforeStartProxy pins the FFI call
// discipline: abi_version before any other entry point, and stop_proxy
// exactly once on Stop.
func TestSupervisorCallsAbiVersionBeforeStartProxy(t *testing.T) {
	ctrl := gomock.NewController(t)
	proxy := ffi.NewMockNativeProxy(ctrl)

	gomock.InOrder(
		proxy.EXPECT().AbiVersion().Return(uint32(1)),
		proxy.EXPECT().StartProxy(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(ffi.Handle(1), uint16(8080), nil),
		proxy.EXPECT().StopProxy(ffi.Handle(1)),
	)

	sup := New(testConfig(TransportCallback), proxy, echoHandler(), nil, nil)
	rp, err := sup.Start(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 8080, rp.BoundPort)

	require.NoError(t, sup.Stop(true))
	// Second Stop must not reach the native side again; the mock would
	// fail the test on an unexpected StopProxy call.
	require.NoError(t, sup.Stop(true))
}

// TestSupervisorSurfacesStartProxyFailure confirms a native-side start
// failure is wrapped as ErrNativeFailure for the caller of Start.
func TestSupervisorSurfacesStartProxyFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	proxy := ffi.NewMockNativeProxy(ctrl)

	proxy.EXPECT().AbiVersion().Return(uint32(1))
	proxy.EXPECT().StartProxy(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(ffi.Handle(0), uint16(0), errors.New("bind: address in use"))

	sup := New(testConfig(TransportCallback), proxy, echoHandler(), nil, nil)
	_, err := sup.Start(context.Background())
	require.ErrorIs(t, err, ffi.ErrNativeFailure)
}
