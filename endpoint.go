//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/conn.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/conn.go
//
// Generalized from the teacher's observedConn (a net.Conn wrapper that
// only logs I/O) into spec.md §4.1's Endpoint: a net.Conn wrapper that
// also maintains bidirectional I/O counters and an optional stats
// observer, both invoked under the same mutex so they never disagree.
//

package asyncproxy

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bassosimone/safeconn"
)

// newEndpoint wraps conn into an [*Endpoint] that maintains [Stats] and
// logs I/O events, per spec.md §4.1.
func newEndpoint(conn net.Conn, cfg *Config, logger SLogger, observer StatsObserver) *Endpoint {
	return &Endpoint{
		conn:          conn,
		errClassifier: cfg.ErrClassifier,
		laddr:         safeconn.LocalAddr(conn),
		logger:        logger,
		observer:      observer,
		protocol:      safeconn.Network(conn),
		raddr:         safeconn.RemoteAddr(conn),
		timeNow:       cfg.TimeNow,
	}
}

// Endpoint is one side of a [*Proxy]: a [net.Conn] plus bidirectional
// I/O statistics and an optional [StatsObserver].
//
// Counters are monotonically non-decreasing (spec.md §4.1, P2) and are
// only ever mutated by [*Endpoint.Recv] and [*Endpoint.Send] on a
// positive byte count, under mu. [*Endpoint.Recv] additionally invokes
// the stats observer, if any, before releasing mu, so the observer
// never sees a torn or stale snapshot and two concurrent Recv calls on
// the same Endpoint can never deliver their notifications out of
// update order.
//
// Between [*Proxy.Start] and the pump's exit, only the pump goroutines
// call Recv/Send on an Endpoint (spec.md §5).
type Endpoint struct {
	closeOnce     sync.Once
	conn          net.Conn
	errClassifier ErrClassifier
	laddr         string
	logger        SLogger
	mu            sync.Mutex
	observer      StatsObserver
	protocol      string
	raddr         string
	stats         Stats
	timeNow       func() time.Time
}

// Conn returns the underlying [net.Conn], for callers that need
// connection metadata (e.g. [*Proxy.LocalAddr]) or must close it to
// unblock a peer's in-flight I/O.
func (e *Endpoint) Conn() net.Conn {
	return e.conn
}

// Recv performs a single read into buf. On a positive return it
// increments In.Ops by 1 and In.Bytes by the byte count under mu, and
// — still under mu — invokes the stats observer if one is installed,
// so observers always see a consistent snapshot (spec.md §4.1).
func (e *Endpoint) Recv(buf []byte) (int, error) {
	t0 := e.timeNow()
	e.logger.Debug(
		"readStart",
		slog.Int("ioBufferSize", len(buf)),
		slog.String("localAddr", e.laddr),
		slog.String("protocol", e.protocol),
		slog.String("remoteAddr", e.raddr),
		slog.Time("t", t0),
	)

	n, err := e.conn.Read(buf)

	e.logger.Debug(
		"readDone",
		slog.Int("ioBytesCount", n),
		slog.Any("err", err),
		slog.String("errClass", e.errClassifier.Classify(err)),
		slog.String("localAddr", e.laddr),
		slog.String("protocol", e.protocol),
		slog.String("remoteAddr", e.raddr),
		slog.Time("t0", t0),
		slog.Time("t", e.timeNow()),
	)

	if n > 0 {
		e.mu.Lock()
		e.stats.In.Ops++
		e.stats.In.Bytes += uint64(n)
		if e.observer != nil {
			e.observer.OnStatsUpdate(e.stats)
		}
		e.mu.Unlock()
	}
	return n, err
}

// Send performs a single write of buf. On a positive return it
// increments Out.Ops by 1 and Out.Bytes by the byte count under mu.
// Unlike [Endpoint.Recv], Send does not notify the stats observer: the
// observer contract is a recv-only signal (spec.md §4.1's send
// operation only updates the counters).
func (e *Endpoint) Send(buf []byte) (int, error) {
	t0 := e.timeNow()
	e.logger.Debug(
		"writeStart",
		slog.Int("ioBufferSize", len(buf)),
		slog.String("localAddr", e.laddr),
		slog.String("protocol", e.protocol),
		slog.String("remoteAddr", e.raddr),
		slog.Time("t", t0),
	)

	n, err := e.conn.Write(buf)

	e.logger.Debug(
		"writeDone",
		slog.Int("ioBytesCount", n),
		slog.Any("err", err),
		slog.String("errClass", e.errClassifier.Classify(err)),
		slog.String("localAddr", e.laddr),
		slog.String("protocol", e.protocol),
		slog.String("remoteAddr", e.raddr),
		slog.Time("t0", t0),
		slog.Time("t", e.timeNow()),
	)

	if n > 0 {
		e.mu.Lock()
		e.stats.Out.Ops++
		e.stats.Out.Bytes += uint64(n)
		e.mu.Unlock()
	}
	return n, err
}

// Stats returns a snapshot of the endpoint's bidirectional counters.
func (e *Endpoint) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Close closes the underlying connection exactly once, logging
// closeStart/closeDone. Subsequent calls return [net.ErrClosed],
// consistent with Go's standard library behavior for closed
// connections.
func (e *Endpoint) Close() (err error) {
	err = net.ErrClosed
	e.closeOnce.Do(func() {
		t0 := e.timeNow()
		e.logger.Info(
			"closeStart",
			slog.String("localAddr", e.laddr),
			slog.String("protocol", e.protocol),
			slog.String("remoteAddr", e.raddr),
			slog.Time("t", t0),
		)

		err = e.conn.Close()

		e.logger.Info(
			"closeDone",
			slog.Any("err", err),
			slog.String("errClass", e.errClassifier.Classify(err)),
			slog.String("localAddr", e.laddr),
			slog.String("protocol", e.protocol),
			slog.String("remoteAddr", e.raddr),
			slog.Time("t0", t0),
			slog.Time("t", e.timeNow()),
		)
	})
	return
}
