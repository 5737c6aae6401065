//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/netxlite/dialer.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/dialer.go
//

package asyncproxy

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/safeconn"
)

// Dialer abstracts the [*net.Dialer] behavior.
//
// By depending on an abstract implementation, [dialHost] (and, through
// it, [dialSink]) allows for unit testing and for using alternative
// dialers.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// dialHost connects to a Host destination's (network, address) pair
// using cfg's [Dialer], logging connectStart/connectDone around the
// call exactly as the teacher's ConnectFunc did for its own dial step.
// When laddr is non-nil, it dials from that local address — spec.md
// §4.2 step 2's outbound bind.
//
// This corresponds to spec.md §4.2 step 3 (resolve) composed with
// §4.4's "issue a non-blocking connect on the sink": [net.Dialer]
// performs both the resolution and the connect, and its context
// argument is the asynchronous-connect-completion mechanism — there is
// no separate "in progress" state to poll for in Go.
//
// The abstract [Dialer] interface has no notion of a local address, so
// binding is only honored when cfg.Dialer is the default [*net.Dialer]
// (or another *net.Dialer supplied by the caller); other [Dialer]
// implementations (e.g. test stubs) ignore laddr, which is harmless
// since spec.md's bind invariant is only reachable for Host
// destinations dialed with a real [*net.Dialer].
func dialHost(ctx context.Context, cfg *Config, logger SLogger, network, address string, laddr net.Addr) (net.Conn, error) {
	dialer := cfg.Dialer
	if laddr != nil {
		if nd, ok := cfg.Dialer.(*net.Dialer); ok {
			clone := *nd
			clone.LocalAddr = laddr
			dialer = &clone
		}
	}

	t0 := cfg.TimeNow()
	deadline, _ := ctx.Deadline()
	logConnectStart(logger, network, address, t0, deadline)
	conn, err := dialer.DialContext(ctx, network, address)
	logConnectDone(logger, cfg.ErrClassifier, cfg.TimeNow, network, address, t0, deadline, conn, err)
	return conn, err
}

func logConnectStart(logger SLogger, network, address string, t0, deadline time.Time) {
	logger.Info(
		"connectStart",
		slog.Time("deadline", deadline),
		slog.String("protocol", network),
		slog.String("remoteAddr", address),
		slog.Time("t", t0),
	)
}

func logConnectDone(
	logger SLogger, errClassifier ErrClassifier, timeNow func() time.Time,
	network, address string, t0, deadline time.Time, conn net.Conn, err error) {
	logger.Info(
		"connectDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", errClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", network),
		slog.String("remoteAddr", address),
		slog.Time("t0", t0),
		slog.Time("t", timeNow()),
	)
}
