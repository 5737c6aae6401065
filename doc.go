// SPDX-License-Identifier: GPL-3.0-or-later

// Package asyncproxy provides a bidirectional asynchronous byte-stream proxy.
//
// # Core Abstraction
//
// A [*Proxy] shuttles bytes between an already-open source [net.Conn] and a
// sink endpoint (dialed lazily, or a pre-opened descriptor) on a dedicated
// pair of goroutines, one per direction. It is a blind byte pump: no
// protocol awareness, no framing, no reordering within a direction.
//
// # Lifecycle
//
// A [*Proxy] moves through five states: Init, Start, Run, Cease, Quit. See
// [State] for the full transition diagram. [New] constructs a proxy in
// Init; [*Proxy.Start] spawns the pump and moves it to Start then Run;
// [*Proxy.Close] requests Cease and joins the pump; the pump itself moves
// to Quit on EOF or an unrecoverable I/O error. [*Proxy.IsAlive] and
// [*Proxy.String] let the owner observe this without any error channel —
// termination is always observed, never returned asynchronously.
//
// # Transformers
//
// Callers may install a [Transformer] per direction with
// [*Proxy.SetInToOut] and [*Proxy.SetOutToIn]. A transformer receives a
// chunk of bytes read from one side and returns the bytes to write to the
// other; see [Transformer] for the capacity contract.
//
// # Observability
//
// All primitives support structured logging via [SLogger] (compatible with
// [log/slog]). By default, logging is disabled. Set [Config.Logger] to a
// custom [*slog.Logger] to enable logging. Error classification is
// configurable via [Config.ErrClassifier].
//
// Pumps emit two kinds of structured log events:
//
//   - Span events at [slog.LevelInfo]: proxyStart/proxyDone bracket a
//     [*Proxy]'s whole lifetime; pumpStart/pumpDone bracket one
//     direction goroutine; connectStart/connectDone bracket dialing a
//     Host destination; closeStart/closeDone bracket closing an
//     endpoint.
//
//   - Per-I/O events at [slog.LevelDebug]: readStart/readDone,
//     writeStart/writeDone.
//
// The connect, close, read and write events share a common set of
// fields: localAddr, remoteAddr, protocol, and t (timestamp); their
// completion events additionally include t0 (start time), err, and
// errClass. pumpStart/pumpDone carry the direction (and pumpDone the
// err); proxyStart/proxyDone carry the spanID (and proxyDone the state).
//
// Use [NewSpanID] to generate a unique, time-ordered identifier (UUIDv7)
// for each proxy; [New] does this automatically and includes it on the
// proxyStart/proxyDone events.
//
// Per-endpoint I/O statistics ([Stats]) are available at any time via
// [*Proxy.Stats], and may additionally be pushed to a [StatsObserver]
// installed on [Config.StatsObserver].
//
// # Concurrency
//
// Between [*Proxy.Start] and the pump's exit, the two endpoint
// descriptors are owned by the pump goroutines; the owner must not read
// or write them directly. The lifecycle state and each transformer slot
// carry their own mutex — there is no single proxy-wide lock — and the
// I/O buffers are private to their goroutine and never shared.
//
// # Out of Scope
//
// This package does not listen or accept connections, does not manage an
// address book or session state, does not perform TLS, and does not embed
// a script-host transformer runtime — [Transformer] is a plain Go
// interface; any host-language locking a caller needs belongs inside
// their own implementation of it.
package asyncproxy
