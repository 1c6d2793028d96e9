//go:build windows

package supervisor

import (
	"context"
	"net"
)

// listenBridge on non-Unix hosts always binds loopback TCP on an
// ephemeral port. SO_REUSEPORT has no portable Windows equivalent
// wired here, so cfg.Shared is a no-op on this platform.
func listenBridge(ctx context.Context, cfg Config) (ln net.Listener, addr string, cleanup func(), err error) {
	var lc net.ListenConfig
	ln, err = lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, "", func() {}, err
	}
	return ln, ln.Addr().String(), func() {}, nil
}
