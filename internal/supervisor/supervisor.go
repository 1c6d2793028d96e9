// Package supervisor boots and shuts down the native proxy, choosing
// a bridge transport (stream or direct callback), tracking connection
// accounting, and arbitrating graceful vs. forced shutdown. It is the
// one component that owns the native proxy handle end to end.
package supervisor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/hnolan/httpbridge/internal/bridge"
	"github.com/hnolan/httpbridge/internal/direct"
	"github.com/hnolan/httpbridge/internal/ffi"
	"github.com/hnolan/httpbridge/internal/handler"
	"github.com/hnolan/httpbridge/internal/metrics"
)

// TransportMode selects between the stream bridge socket and the
// direct callback/queue transport.
type TransportMode string

const (
	TransportStream   TransportMode = "stream"
	TransportCallback TransportMode = "callback"
)

// Config is the full recognized option set for a proxy instance.
type Config struct {
	Host                     string
	Port                     uint16
	Secure                   bool
	TLSCertPath              string
	TLSKeyPath               string
	TLSCertPassword          string
	Backlog                  uint32
	V6Only                   bool
	Shared                   bool
	RequestClientCertificate bool
	HTTP2                    bool
	HTTP3                    bool
	TransportMode            TransportMode
	BodyLimit                int
	FrameLimit               int
	CoalesceThreshold        int
	IdleTimeout              time.Duration
	InstallSignalHandlers    bool

	// ShutdownSignal, if set, completes the same shutdown path as an
	// OS signal without the supervisor installing any signal handlers.
	ShutdownSignal <-chan struct{}
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Host:                  "127.0.0.1",
		Backlog:               128,
		HTTP2:                 true,
		HTTP3:                 true,
		TransportMode:         TransportStream,
		BodyLimit:             32 << 20,
		FrameLimit:            64 << 20,
		CoalesceThreshold:     4096,
		InstallSignalHandlers: true,
	}
}

// forceShutdownDeadline is the grace window between the first shutdown
// trigger and a forced exit.
const forceShutdownDeadline = 5 * time.Second

// ConnectionsInfo is the connection-accounting snapshot.
type ConnectionsInfo struct {
	Total   int64
	Active  int64
	Idle    int64
	Closing int64
}

// RunningProxy is the handle Start returns: the bound port and the
// means to observe connection counts and stop.
type RunningProxy struct {
	BoundPort uint16
	sup       *Supervisor
}

// Stop stops accepting, closes the native proxy and bridge listener,
// and awaits in-flight handler tasks within the 5-second grace window.
// Calling Stop more than once is a no-op after the first call.
func (r *RunningProxy) Stop(force bool) error { return r.sup.Stop(force) }

// ConnectionsInfo returns the current connection accounting snapshot.
func (r *RunningProxy) ConnectionsInfo() ConnectionsInfo { return r.sup.ConnectionsInfo() }

// Supervisor owns one native proxy lifecycle.
type Supervisor struct {
	cfg   Config
	proxy ffi.NativeProxy
	h     handler.Handler
	log   *logrus.Entry
	clock clockwork.Clock

	handle     ffi.Handle
	listener   net.Listener
	cleanup    func()
	backendFor string

	directEngine *direct.Engine
	metrics      *metrics.Registry

	total, active, closing atomic.Int64

	connCtx    context.Context
	cancelConn context.CancelFunc
	connGroup  sync.WaitGroup

	stopOnce sync.Once
	stopErr  error
	stopped  chan struct{}
}

// New constructs a Supervisor. clock defaults to clockwork.NewRealClock()
// when nil; tests pass clockwork.NewFakeClock() for deterministic
// shutdown-timer behavior.
func New(cfg Config, proxy ffi.NativeProxy, h handler.Handler, log *logrus.Entry, clock clockwork.Clock) *Supervisor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if !cfg.Secure && cfg.HTTP3 {
		log.Warn("supervisor: http3 requires secure=true; disabling")
		cfg.HTTP3 = false
	}
	return &Supervisor{
		cfg:     cfg,
		proxy:   proxy,
		h:       h,
		log:     log,
		clock:   clock,
		stopped: make(chan struct{}),
	}
}

// Start boots the chosen transport and the native proxy, returning
// once both are up. The caller should arrange to call Stop (directly,
// or rely on the signal/ShutdownSignal watcher started here when
// configured).
func (s *Supervisor) Start(ctx context.Context) (*RunningProxy, error) {
	if s.proxy.AbiVersion() == 0 {
		return nil, fmt.Errorf("supervisor: %w: abi_version returned 0", ffi.ErrNativeFailure)
	}

	s.connCtx, s.cancelConn = context.WithCancel(context.Background())

	startCfg := ffi.StartConfig{
		Host:                     s.cfg.Host,
		Port:                     s.cfg.Port,
		Secure:                   s.cfg.Secure,
		TLSCertPath:              s.cfg.TLSCertPath,
		TLSKeyPath:               s.cfg.TLSKeyPath,
		TLSCertPassword:          s.cfg.TLSCertPassword,
		Backlog:                  s.cfg.Backlog,
		V6Only:                   s.cfg.V6Only,
		Shared:                   s.cfg.Shared,
		RequestClientCertificate: s.cfg.RequestClientCertificate,
		HTTP2:                    s.cfg.HTTP2,
		HTTP3:                    s.cfg.HTTP3,
		TransportMode:            string(s.cfg.TransportMode),
	}

	var cb ffi.Callback
	if s.cfg.TransportMode == TransportCallback {
		s.directEngine = direct.NewEngine(s.proxy, s.h, direct.Limits{BodyLimit: s.cfg.BodyLimit, FrameLimit: s.cfg.FrameLimit}, s.log)
		cb = s.directEngine.Callback()
	} else {
		ln, addr, cleanup, err := listenBridge(ctx, s.cfg)
		if err != nil {
			return nil, fmt.Errorf("supervisor: binding bridge listener: %w", err)
		}
		s.listener = ln
		s.cleanup = cleanup
		s.backendFor = addr
		startCfg.BackendAddress = addr
	}

	handle, boundPort, err := s.proxy.StartProxy(ctx, startCfg, cb)
	if err != nil {
		if s.cleanup != nil {
			s.cleanup()
		}
		return nil, fmt.Errorf("supervisor: %w: %v", ffi.ErrNativeFailure, err)
	}
	s.handle = handle
	if s.directEngine != nil {
		s.directEngine.Bind(handle)
	}

	if s.listener != nil {
		go s.acceptLoop()
	}

	if s.cfg.InstallSignalHandlers || s.cfg.ShutdownSignal != nil {
		go s.watchShutdown()
	}

	return &RunningProxy{BoundPort: boundPort, sup: s}, nil
}

// WithMetrics attaches a Prometheus registry that acceptOn reports
// connection counts to. Optional; nil leaves metrics unreported
// without otherwise changing behavior. Must be called before Start.
func (s *Supervisor) WithMetrics(reg *metrics.Registry) *Supervisor {
	s.metrics = reg
	return s
}

// acceptLoop accepts bridge connections and serves each with
// internal/bridge.Serve until the listener closes.
func (s *Supervisor) acceptLoop() {
	_ = s.acceptOn(s.listener)
}

func (s *Supervisor) bridgeLimits() bridge.Limits {
	return bridge.Limits{
		BodyLimit:         s.cfg.BodyLimit,
		FrameLimit:        s.cfg.FrameLimit,
		CoalesceThreshold: s.cfg.CoalesceThreshold,
	}
}

// acceptOn runs ln's accept loop, serving each connection with
// internal/bridge.Serve, until Accept returns an error (the listener
// was closed). Shared by the single-listener path and
// ServeDualStackLoopback.
func (s *Supervisor) acceptOn(ln net.Listener) error {
	limits := s.bridgeLimits()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		s.total.Inc()
		s.active.Inc()
		if s.metrics != nil {
			s.metrics.ConnectionsTotal.Inc()
			s.metrics.ConnectionsActive.Inc()
		}
		s.connGroup.Add(1)
		go func() {
			defer s.connGroup.Done()
			defer conn.Close()
			defer s.active.Dec()
			if s.metrics != nil {
				defer s.metrics.ConnectionsActive.Dec()
			}
			if err := bridge.Serve(s.connCtx, conn, s.h, limits, s.cfg.IdleTimeout, s.log); err != nil {
				s.log.WithError(err).Debug("supervisor: bridge connection ended with error")
			}
		}()
	}
}

// ServeDualStackLoopback is the "serve on any address" helper: it
// probes a single ephemeral port free on both IPv4 and IPv6 loopback, then accepts bridge connections on both
// listeners concurrently until ctx is canceled or either listener
// fails. Used instead of Start's single-listener path when a host
// wants the bridge socket reachable over both stacks.
func (s *Supervisor) ServeDualStackLoopback(ctx context.Context) error {
	if s.connCtx == nil {
		s.connCtx, s.cancelConn = context.WithCancel(context.Background())
	}
	v4, v6, err := probeDualStackLoopbackPort(ctx)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.acceptOn(v4) })
	g.Go(func() error { return s.acceptOn(v6) })
	go func() {
		<-gctx.Done()
		_ = v4.Close()
		_ = v6.Close()
	}()
	return g.Wait()
}

// watchShutdown waits for an OS signal (if installed) or the external
// ShutdownSignal, then drives the two-signal/5-second-timer shutdown
// race.
func (s *Supervisor) watchShutdown() {
	var sigCh chan os.Signal
	if s.cfg.InstallSignalHandlers {
		sigCh = make(chan os.Signal, 2)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}

	select {
	case <-sigCh:
	case <-s.cfg.ShutdownSignal:
	case <-s.stopped:
		return
	}

	go func() { _ = s.Stop(false) }()

	timer := s.clock.NewTimer(forceShutdownDeadline)
	defer timer.Stop()

	select {
	case <-s.stopped:
		return
	case <-sigCh:
		_ = s.Stop(true)
		return
	case <-timer.Chan():
		_ = s.Stop(true)
		return
	}
}

// Stop stops accepting, closes the native proxy handle, cancels the
// bridge listener, and removes the unix socket path (if any). It waits
// for in-flight connection handlers to finish, up to the 5-second
// grace window, then proceeds regardless when force is true or the
// deadline elapses. Calling Stop more than once is safe; only the
// first call does any work.
func (s *Supervisor) Stop(force bool) error {
	s.stopOnce.Do(func() {
		s.stopErr = s.doStop(force)
		close(s.stopped)
	})
	return s.stopErr
}

func (s *Supervisor) doStop(force bool) error {
	var errs *multierror.Error

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing bridge listener: %w", err))
		}
	}
	if s.cleanup != nil {
		s.cleanup()
	}

	s.proxy.StopProxy(s.handle)

	// Graceful: let in-flight handlers finish before canceling their
	// contexts; force (or the deadline elapsing) cancels immediately.
	if force {
		s.cancelConn()
	} else {
		s.closing.Store(s.active.Load())
		waitDone := make(chan struct{})
		go func() {
			s.connGroup.Wait()
			close(waitDone)
		}()
		select {
		case <-waitDone:
		case <-s.clock.After(forceShutdownDeadline):
		}
		s.cancelConn()
		s.closing.Store(0)
	}

	if errs.ErrorOrNil() != nil {
		return errs.ErrorOrNil()
	}
	return nil
}

// ConnectionsInfo reports the live connection accounting (stream
// transport only; the direct/callback transport has no per-connection
// concept, so Active/Idle/Closing are always zero there).
func (s *Supervisor) ConnectionsInfo() ConnectionsInfo {
	active := s.active.Load()
	return ConnectionsInfo{
		Total:   s.total.Load(),
		Active:  active,
		Idle:    0,
		Closing: s.closing.Load(),
	}
}
