// SPDX-FileCopyrightText: 2025, 2026 Jonas Reinhardt
// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"encoding/binary"
	"errors"
)

// ErrCorruptStream is returned by Tokenizer.Receive when a message header
// declares a size smaller than the header itself. The stream cannot be
// re-synchronized afterwards and should be torn down by the caller.
var ErrCorruptStream = errors.New("wire: stream corrupt, declared message size below header size")

// Tokenizer reassembles length-prefixed messages from a stream of
// arbitrary-sized byte chunks. The handler is invoked exactly once per
// complete message, in arrival order, no matter how the stream was chunked.
//
// A Tokenizer must only be fed from one goroutine and the handler must not
// call Receive on the same instance again. The message slice passed to the
// handler aliases internal or caller memory and is only valid until the
// handler returns.
type Tokenizer struct {
	handler func(message []byte) error

	// buf holds a partial message between Receive calls. Bytes in
	// [0, off) were already dispatched, bytes in [off, pos) are valid.
	buf []byte
	off int
	pos int
}

// NewTokenizer creates a Tokenizer dispatching to the given handler. An error
// returned by the handler aborts the current Receive and is passed through.
func NewTokenizer(handler func(message []byte) error) *Tokenizer {
	return &Tokenizer{
		handler: handler,
		buf:     make([]byte, HeaderSize),
	}
}

// grow extends the buffer to hold total bytes. Capacity never shrinks.
func (t *Tokenizer) grow(total int) {
	if total <= len(t.buf) {
		return
	}

	grown := make([]byte, total)
	copy(grown, t.buf[:t.pos])
	t.buf = grown
}

// compact moves the not yet dispatched bytes to the buffer's front.
func (t *Tokenizer) compact() {
	copy(t.buf, t.buf[t.off:t.pos])
	t.pos -= t.off
	t.off = 0
}

// Receive processes data, dispatching every message completed by it and
// buffering a trailing partial message for the next call. Empty input is a
// no-op. On ErrCorruptStream or a handler error the Tokenizer must not be
// used further for this stream.
func (t *Tokenizer) Receive(data []byte) error {
	// Drain a partial message buffered by earlier calls first.
	for t.pos > 0 {
		if len(t.buf)-t.off < HeaderSize {
			t.compact()
		}

		if missing := HeaderSize - (t.pos - t.off); missing > 0 {
			n := missing
			if n > len(data) {
				n = len(data)
			}
			copy(t.buf[t.pos:], data[:n])
			t.pos += n
			data = data[n:]
		}
		if t.pos-t.off < HeaderSize {
			return nil
		}

		want := int(binary.BigEndian.Uint16(t.buf[t.off:]))
		if want < HeaderSize {
			return ErrCorruptStream
		}

		if len(t.buf)-t.off < want {
			t.compact()
		}
		t.grow(want)

		if missing := want - (t.pos - t.off); missing > 0 {
			n := missing
			if n > len(data) {
				n = len(data)
			}
			copy(t.buf[t.pos:], data[:n])
			t.pos += n
			data = data[n:]
		}
		if t.pos-t.off < want {
			return nil
		}

		if err := t.handler(t.buf[t.off : t.off+want]); err != nil {
			return err
		}

		t.off += want
		if t.off == t.pos {
			t.off = 0
			t.pos = 0
		}
	}

	// Nothing buffered anymore; dispatch complete messages straight from the
	// caller's chunk without copying.
	for len(data) >= HeaderSize {
		want := int(binary.BigEndian.Uint16(data))
		if want < HeaderSize {
			return ErrCorruptStream
		}
		if len(data) < want {
			break
		}

		if err := t.handler(data[:want]); err != nil {
			return err
		}
		data = data[want:]
	}

	// Keep the trailing fragment for the next call.
	if len(data) > 0 {
		t.grow(t.pos + len(data))
		copy(t.buf[t.pos:], data)
		t.pos += len(data)
	}

	return nil
}

// Reset drops all buffered bytes. The buffer's capacity is kept.
func (t *Tokenizer) Reset() {
	t.off = 0
	t.pos = 0
}
