// SPDX-License-Identifier: GPL-3.0-or-later

package asyncproxy

import "github.com/bassosimone/runtimex"

// ioBuffer is the fixed-capacity staging area between one direction's
// read side and the write side of its peer (spec.md §3 L2).
//
// data[:len] holds bytes already read and awaiting a write to the
// opposite endpoint; data[len:cap(data)] is free space for the next
// read. An ioBuffer is private to one direction's goroutine in
// [pump.run] — it is never shared, so it needs no lock.
type ioBuffer struct {
	data []byte
	len  int
}

// newIOBuffer allocates an ioBuffer with the given fixed capacity.
func newIOBuffer(capacity int) *ioBuffer {
	return &ioBuffer{data: make([]byte, capacity)}
}

// free returns the writable tail of data, i.e. the free space for the
// next read.
func (b *ioBuffer) free() []byte {
	return b.data[b.len:]
}

// full reports whether the buffer has no free space left.
func (b *ioBuffer) full() bool {
	return b.len == len(b.data)
}

// empty reports whether there is nothing pending a write.
func (b *ioBuffer) empty() bool {
	return b.len == 0
}

// pending returns the bytes awaiting a write to the peer.
func (b *ioBuffer) pending() []byte {
	return b.data[:b.len]
}

// advance grows the pending region by n bytes after a read (and,
// optionally, a transform) appended them at the tail.
func (b *ioBuffer) advance(n int) {
	b.len += n
}

// consume removes the first n bytes of the pending region after they
// were accepted by a write, left-aligning whatever remains.
func (b *ioBuffer) consume(n int) {
	remaining := b.len - n
	if remaining > 0 {
		copy(b.data, b.data[n:b.len])
	}
	b.len = remaining
}

// replaceTail overwrites the region starting at oldLen with result and
// sets len to oldLen+len(result). The pump calls this after a read of
// n bytes at offset oldLen was handed to a [Transformer]: result may be
// shorter than n (the common case, e.g. \r\n -> \n), the same slice
// shrunk in place, or an entirely different backing array.
//
// It asserts that result fits in the capacity that was free at oldLen
// — the transformer contract (spec.md §6) forbids growing a chunk
// beyond the buffer's remaining capacity, and a violation is a
// programming error in the Transformer, not a runtime condition to
// recover from.
func (b *ioBuffer) replaceTail(oldLen int, result []byte) {
	runtimex.Assert(len(result) <= len(b.data)-oldLen)
	b.len = oldLen + copy(b.data[oldLen:], result)
}
