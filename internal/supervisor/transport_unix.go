//go:build !windows

package supervisor

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"
)

const socketPrefix = "httpbridge"

// socketPath picks a unique path under the system temp directory:
// <tmp>/<prefix>_<pid>_<timestamp_us>.sock.
func socketPath() string {
	return fmt.Sprintf("%s/%s_%d_%d.sock", os.TempDir(), socketPrefix, os.Getpid(), time.Now().UnixMicro())
}

// listenBridge attempts a unix-domain socket under the temp directory
// first, falling back to loopback TCP on any bind failure. The returned cleanup removes the socket path, if one was
// created, and is safe to call more than once.
func listenBridge(ctx context.Context, cfg Config) (ln net.Listener, addr string, cleanup func(), err error) {
	path := socketPath()
	ln, err = net.Listen("unix", path)
	if err == nil {
		return ln, path, func() { _ = os.Remove(path) }, nil
	}
	ln, addr, err = listenLoopbackTCP(ctx, cfg)
	return ln, addr, func() {}, err
}

func listenLoopbackTCP(ctx context.Context, cfg Config) (net.Listener, string, error) {
	var (
		ln  net.Listener
		err error
	)
	if cfg.Shared {
		ln, err = listenShared(ctx, "tcp", "127.0.0.1:0")
	} else {
		ln, err = net.Listen("tcp", "127.0.0.1:0")
	}
	if err != nil {
		return nil, "", err
	}
	return ln, ln.Addr().String(), nil
}
