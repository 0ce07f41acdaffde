// SPDX-FileCopyrightText: 2025 Jonas Reinhardt
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package wire defines the message format exchanged between wireflow nodes
// and the Tokenizer, which reassembles those messages from an arbitrarily
// chunked byte stream.
//
// Every message starts with a fixed four byte header: the total message
// length including the header, followed by the message's type code, both
// 16 bit big endian.
package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the length of the fixed message header in bytes.
	HeaderSize = 4

	// MaxMessageSize bounds the total length of a single message.
	MaxMessageSize = 65536
)

// Header is the fixed prefix of every message.
type Header struct {
	// Size is the total message length in bytes, header included.
	Size uint16

	// Type is the message's type code, see the MessageType constants.
	Type uint16
}

// ParseHeader reads a Header from the first HeaderSize bytes of raw.
func ParseHeader(raw []byte) (h Header, err error) {
	if len(raw) < HeaderSize {
		err = fmt.Errorf("wire: header needs %d bytes, got %d", HeaderSize, len(raw))
		return
	}

	h.Size = binary.BigEndian.Uint16(raw)
	h.Type = binary.BigEndian.Uint16(raw[2:])
	return
}

// Put serializes the Header into the first HeaderSize bytes of buf.
func (h Header) Put(buf []byte) {
	binary.BigEndian.PutUint16(buf, h.Size)
	binary.BigEndian.PutUint16(buf[2:], h.Type)
}

func (h Header) String() string {
	return fmt.Sprintf("Header(Size=%d, Type=%#04x)", h.Size, h.Type)
}
