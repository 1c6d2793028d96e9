package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// maxDualStackProbeAttempts bounds the IPv4-then-IPv6 ephemeral-port
// probe loop so an unlucky run of collisions can't spin forever.
const maxDualStackProbeAttempts = 8

// probeDualStackLoopbackPort finds a single port free on both IPv4 and
// IPv6 loopback by binding IPv4 first (to let the kernel pick an
// ephemeral port), then attempting IPv6 on that same port; on
// address-in-use it retries with a fresh IPv4 probe, bounded by
// maxDualStackProbeAttempts.
func probeDualStackLoopbackPort(ctx context.Context) (v4, v6 net.Listener, err error) {
	var lc net.ListenConfig
	for attempt := 0; attempt < maxDualStackProbeAttempts; attempt++ {
		v4, err = lc.Listen(ctx, "tcp4", "127.0.0.1:0")
		if err != nil {
			return nil, nil, fmt.Errorf("supervisor: probing ipv4 loopback: %w", err)
		}
		port := v4.Addr().(*net.TCPAddr).Port

		v6, err = lc.Listen(ctx, "tcp6", fmt.Sprintf("[::1]:%d", port))
		if err == nil {
			return v4, v6, nil
		}
		_ = v4.Close()
		v4 = nil
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, nil, fmt.Errorf("supervisor: probing ipv6 loopback: %w", err)
		}
	}
	return nil, nil, fmt.Errorf("supervisor: no dual-stack loopback port free after %d attempts", maxDualStackProbeAttempts)
}
