// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: nabbar-golib/ioutils/multi/stat.go (plain-struct Stats()
// snapshot idiom: a method returns a value type, never a pointer into
// live counters, so callers can't accidentally race on the internals).

package asyncproxy

// Direction holds the operation and byte counters for one traffic
// direction of an [Endpoint].
//
// Counters are monotonically non-decreasing for the lifetime of the
// endpoint (spec.md §4.1, P2).
type Direction struct {
	// Ops is the number of successful recv/send calls.
	Ops uint64

	// Bytes is the cumulative number of bytes transferred.
	Bytes uint64
}

// Stats is a snapshot of an [Endpoint]'s bidirectional I/O counters.
//
// In counts bytes/ops received on the endpoint; Out counts bytes/ops
// sent on it. Two endpoints wired into the same [*Proxy] satisfy
// spec.md §8 P3 absent transformers: source.Out == sink.In and
// sink.Out == source.In.
type Stats struct {
	In  Direction
	Out Direction
}

// StatsObserver is notified of an [Endpoint]'s updated [Stats] after
// every successful recv. It is not notified on send: the observer
// contract is a recv-only signal (spec.md §4.1's send operation only
// updates the counters; the original asp_sock_send never calls
// on_stats_update, only asp_sock_recv does).
//
// OnStatsUpdate is invoked while the endpoint's mutex is still held
// (spec.md §4.1, §9 "Stats observer under lock"), so it always sees a
// consistent snapshot and two concurrent recvs on the same endpoint
// can never deliver their notifications out of update order. An
// observer that blocks stalls I/O on that endpoint; implementations
// must keep this fast.
type StatsObserver interface {
	OnStatsUpdate(stats Stats)
}

// StatsObserverFunc adapts a function to the [StatsObserver] interface.
type StatsObserverFunc func(stats Stats)

var _ StatsObserver = StatsObserverFunc(nil)

// OnStatsUpdate implements [StatsObserver].
func (f StatsObserverFunc) OnStatsUpdate(stats Stats) {
	f(stats)
}
