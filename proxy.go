// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: the teacher's facade-by-convention (NewXxxFunc
// constructors wrapping a struct + Call method) and the original C
// asyncproxy_* API names (asyncproxy_ctor/_start/_isalive/_set_i2o/
// _set_o2i/_join/_dtor/_describe/_getsockname/_setdebug), per spec.md
// §4.5 and §6.

package asyncproxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
)

// ErrSourceRequired is returned by [New] when source is nil.
var ErrSourceRequired = errors.New("asyncproxy: source connection is required")

// ErrAlreadyStarted is returned by [*Proxy.Start] when called more
// than once (spec.md §4.5: start transitions INIT -> START; a second
// call finds the state already past INIT).
var ErrAlreadyStarted = errors.New("asyncproxy: proxy already started")

// debugLevel is process-wide, matching spec.md §9's "the debug level
// is process-wide... reads are racy-by-design (debug only)" — there is
// deliberately no per-Proxy equivalent.
var debugLevel atomic.Int32

// SetDebugLevel sets the process-wide debug verbosity (spec.md §4.5
// set_debug, §6). It affects nothing in this package directly — it is
// exposed for callers that want a single knob to gate their own
// [SLogger] verbosity across every [*Proxy] in the process.
func SetDebugLevel(level int) {
	debugLevel.Store(int32(level))
}

// DebugLevel returns the process-wide debug verbosity last set by
// [SetDebugLevel] (zero if never called).
func DebugLevel() int {
	return int(debugLevel.Load())
}

// Proxy is a bidirectional byte-stream pump between a pre-opened
// source connection and a resolved [Destination] (spec.md §3 "Proxy
// instance", §4.5 facade).
//
// The zero value is not usable; construct with [New]. A *Proxy is
// safe for concurrent use: [*Proxy.SetInToOut], [*Proxy.SetOutToIn],
// [*Proxy.IsAlive], and [*Proxy.Close] may be called from any
// goroutine at any point in the lifecycle.
type Proxy struct {
	cfg       *Config
	dest      Destination
	lifecycle lifecycle
	logger    SLogger
	spanID    string

	source *Endpoint
	sink   *Endpoint
	pump   *pump

	i2o transformerSlot
	o2i transformerSlot

	startOnce sync.Once
	closeOnce sync.Once
	needsJoin atomic.Bool
}

// New validates dest and wraps source as the proxy's source endpoint
// (spec.md §4.5 construct). It does not dial the sink or spawn the
// pump — that happens in [*Proxy.Start] — so New never blocks.
//
// cfg may be nil, in which case [NewConfig]'s defaults are used.
func New(cfg *Config, source net.Conn, dest Destination) (*Proxy, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if cfg == nil {
		cfg = NewConfig()
	}
	switch d := dest.(type) {
	case HostDestination:
		if _, _, err := d.resolve(); err != nil {
			return nil, err
		}
	case FdDestination:
		if d.Conn == nil {
			return nil, fmt.Errorf("%w: FdDestination.Conn is nil", ErrInvalidDestination)
		}
	default:
		return nil, fmt.Errorf("%w: unknown Destination implementation %T", ErrInvalidDestination, dest)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = DefaultSLogger()
	}

	p := &Proxy{
		cfg:    cfg,
		dest:   dest,
		logger: logger,
		spanID: NewSpanID(),
	}
	p.source = newEndpoint(source, cfg, logger, cfg.StatsObserver)
	return p, nil
}

// Start dials the sink (for a [HostDestination]) or adopts it (for a
// [FdDestination]), then spawns the pump. It transitions INIT -> START
// immediately and START -> RUN once both direction goroutines are
// about to enter their loop (spec.md §4.4 startup, §4.5 start).
//
// On dial failure the lifecycle reverts to INIT, matching spec.md
// §4.5's "on spawn failure, reverts to INIT" (generalized here to
// cover sink-dial failure too, since Start folds spec.md §4.4's
// worker-startup connect step into itself — see SPEC_FULL.md §2).
func (p *Proxy) Start(ctx context.Context) error {
	if !p.lifecycle.start() {
		return ErrAlreadyStarted
	}

	sinkConn, err := dialSink(ctx, p.cfg, p.logger, p.dest)
	if err != nil {
		p.lifecycle.revertToInit()
		return err
	}
	p.sink = newEndpoint(sinkConn, p.cfg, p.logger, p.cfg.StatsObserver)

	p.logger.Info("proxyStart", slog.String("spanID", p.spanID))

	p.pump = &pump{
		source:     p.source,
		sink:       p.sink,
		bufferSize: p.cfg.BufferSize,
		logger:     p.logger,
		lifecycle:  &p.lifecycle,
	}
	p.needsJoin.Store(true)
	p.pump.start(&p.i2o, &p.o2i)
	return nil
}

// IsAlive reports whether the lifecycle is START or RUN (spec.md §4.5
// is_alive).
func (p *Proxy) IsAlive() bool {
	return p.lifecycle.isAlive()
}

// SetInToOut installs the transformer applied to bytes read from the
// source before they are written to the sink (spec.md §4.5 set_i2o).
// A nil transformer disables transformation. Safe to call before or
// after [*Proxy.Start], and concurrently with the pump.
func (p *Proxy) SetInToOut(t Transformer) {
	p.i2o.set(t)
}

// SetOutToIn installs the transformer applied to bytes read from the
// sink before they are written to the source (spec.md §4.5 set_o2i).
func (p *Proxy) SetOutToIn(t Transformer) {
	p.o2i.set(t)
}

// Join blocks until the pump has exited. If force is true, it first
// shuts down both endpoints to unblock a goroutine parked in Recv or
// Send (spec.md §4.5 join). If the pump was never started, Join
// returns immediately.
func (p *Proxy) Join(force bool) {
	if !p.needsJoin.Load() {
		return
	}
	if force {
		p.pump.forceCease()
	}
	p.pump.join()
	p.needsJoin.Store(false)
}

// Close requests termination (if running) and joins the pump in force
// mode, then closes both endpoints (spec.md §4.5 destroy). Close is
// idempotent: subsequent calls are no-ops.
func (p *Proxy) Close() error {
	p.closeOnce.Do(func() {
		p.lifecycle.cease()
		p.Join(true)
		p.source.Close()
		if p.sink != nil {
			p.sink.Close()
		}
		p.logger.Info("proxyDone",
			slog.String("spanID", p.spanID),
			slog.String("state", p.lifecycle.get().String()))
	})
	return nil
}

// String returns the lifecycle state's symbolic name (spec.md §4.5
// describe).
func (p *Proxy) String() string {
	return p.lifecycle.get().String()
}

// LocalAddr returns the sink's local address in presentation form,
// with the port reported separately. For a UNIX destination it
// returns the literal "AF_UNIX" and a zero port, mirroring
// asyncproxy_getsockname's AF_UNIX sentinel in the original
// implementation (src/asyncproxy.c) rather than attempting to format a
// filesystem path as host:port (spec.md §4.5 local_name).
//
// LocalAddr returns ("", 0) if called before [*Proxy.Start] or if the
// sink has no meaningful local address (e.g. an adopted [FdDestination]
// whose underlying connection does not implement one).
func (p *Proxy) LocalAddr() (host string, port uint16) {
	if p.sink == nil {
		return "", 0
	}
	if h, ok := p.dest.(HostDestination); ok && h.Family == FamilyUnix {
		return "AF_UNIX", 0
	}
	addr := p.sink.Conn().LocalAddr()
	if addr == nil {
		return "", 0
	}
	h, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}
	n, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return h, 0
	}
	return h, uint16(n)
}

// Stats returns a snapshot of the source and sink endpoints' I/O
// counters (spec.md §4.1). It is valid to call at any point in the
// lifecycle; before [*Proxy.Start] the sink snapshot is the zero
// value.
func (p *Proxy) Stats() (source, sink Stats) {
	source = p.source.Stats()
	if p.sink != nil {
		sink = p.sink.Stats()
	}
	return source, sink
}
