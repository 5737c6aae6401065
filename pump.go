// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: endpoint.go and dial.go's span-logging pattern
// (Start/Done event pairs bracketing a blocking operation).
//
// spec.md §4.4 describes the pump as a single poll(2) loop that
// multiplexes two non-blocking descriptors. Go's runtime netpoller
// already performs that multiplexing under a blocking [net.Conn.Read]
// and [net.Conn.Write]: a goroutine blocked in Read yields the OS
// thread and resumes when data is ready, exactly like a POLLIN wakeup.
// This pump therefore runs one goroutine per direction, each a tight
// read -> transform -> write loop, instead of a single-threaded
// readiness loop over both.
//
// Backpressure (spec.md §8 P5) falls out of this for free: Send
// blocks until the kernel (or the peer, for [net.Pipe]) accepts the
// bytes, so the next Recv on that direction is delayed exactly as long
// as a slow peer delays it — there is no separate POLLOUT bookkeeping
// to maintain.
//
// Because each direction writes everything it read before reading
// again, buf.len is always back to zero at the top of the loop
// (barring the in-flight chunk being processed), so there is no
// partially-flushed state to drain specially on exit: spec.md §8
// scenario 6 (graceful EOF draining in-flight bytes to the other side)
// holds by construction.

package asyncproxy

import (
	"io"
	"log/slog"
	"sync"
)

// transformerSlot is a mutex-guarded, atomically replaceable
// [Transformer] reference (spec.md §4.5 set_i2o/set_o2i: "atomically
// replace the transformer slot"; §4.4: "snapshot the pointer under the
// mutex so registrations never race").
type transformerSlot struct {
	mu sync.Mutex
	t  Transformer
}

func (s *transformerSlot) set(t Transformer) {
	s.mu.Lock()
	s.t = t
	s.mu.Unlock()
}

func (s *transformerSlot) get() Transformer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t
}

// pump is the L5 worker: two direction goroutines sharing a pair of
// endpoints and I/O buffers. The transformer slots belong to the
// owning [*Proxy] (spec.md §4.5: set_i2o/set_o2i may be called before
// Start, so the slots must outlive any one pump run).
type pump struct {
	source     *Endpoint
	sink       *Endpoint
	bufferSize int
	logger     SLogger
	wg         sync.WaitGroup
	doneOnce   sync.Once
	lifecycle  *lifecycle
}

// start spawns both direction goroutines and transitions the lifecycle
// START -> RUN (spec.md §4.4 startup step 1). Callers must have
// already transitioned INIT -> START. i2o transforms bytes flowing
// source->sink; o2i transforms bytes flowing sink->source, matching
// spec.md §4.5's set_i2o/set_o2i naming.
func (p *pump) start(i2o, o2i *transformerSlot) {
	p.lifecycle.enterRun()
	p.wg.Add(2)
	go p.run("i2o", p.source, p.sink, i2o)
	go p.run("o2i", p.sink, p.source, o2i)
}

// join blocks until both direction goroutines have exited.
func (p *pump) join() {
	p.wg.Wait()
}

// run implements one direction's read -> transform -> write loop until
// the read side returns EOF or an unrecoverable error (spec.md §4.4
// read/write phases), at which point it tears down the whole pump: the
// spec's single-threaded loop terminates entirely on either side's
// POLLHUP/error ("record eidx, break out to termination"), which this
// two-goroutine rewrite reproduces by having the first direction to
// fail close both endpoints, unblocking whatever the other direction
// is blocked in.
func (p *pump) run(direction string, from, to *Endpoint, slot *transformerSlot) {
	defer p.wg.Done()

	buf := newIOBuffer(p.bufferSize)
	p.logger.Info("pumpStart", slog.String("direction", direction))

	err := p.loop(buf, from, to, slot)

	p.logger.Info("pumpDone", slog.String("direction", direction), slog.Any("err", err))
	p.terminate()
}

// loop is run's inner read/transform/write cycle, split out so tests
// can drive it directly against stub endpoints without a goroutine.
func (p *pump) loop(buf *ioBuffer, from, to *Endpoint, slot *transformerSlot) error {
	for {
		oldLen := buf.len
		n, rerr := from.Recv(buf.free())
		if n <= 0 {
			if rerr != nil {
				return rerr
			}
			return io.EOF
		}

		if tr := slot.get(); tr != nil {
			chunk := buf.data[oldLen : oldLen+n]
			result := tr.Transform(chunk)
			buf.replaceTail(oldLen, result)
		} else {
			buf.advance(n)
		}

		for !buf.empty() {
			written, err := to.Send(buf.pending())
			if err != nil {
				return err
			}
			buf.consume(written)
		}
		if rerr != nil {
			return rerr
		}
	}
}

// terminate runs once, the first time either direction goroutine
// exits: it transitions RUN -> QUIT (a concurrent owner-initiated
// CEASE is never overwritten, per [lifecycle.quit]) and closes both
// endpoints so the other direction's blocked Recv/Send returns
// immediately instead of waiting for its own I/O to fail naturally.
func (p *pump) terminate() {
	p.doneOnce.Do(func() {
		p.lifecycle.quit()
		p.source.Close()
		p.sink.Close()
	})
}

// forceCease closes both endpoints to unblock a goroutine parked in
// Recv/Send, the Go equivalent of spec.md §4.5 join's "if force, shut
// down the sink to break any pending poll". Idempotent via each
// [Endpoint]'s own close-once guard.
func (p *pump) forceCease() {
	p.source.Close()
	p.sink.Close()
}
