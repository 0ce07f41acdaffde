// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PING is the type code of the keepalive request message.
const PING uint16 = 0x02

// PONG is the type code of the keepalive response message.
const PONG uint16 = 0x03

// Ping probes a link for liveness and round-trip time. The peer answers with
// a Pong echoing both fields.
type Ping struct {
	Seq   uint64
	Nonce uint64
}

// Pong answers a Ping.
type Pong struct {
	Seq   uint64
	Nonce uint64
}

func (p Ping) Type() uint16 {
	return PING
}

func (p Ping) String() string {
	return fmt.Sprintf("PING(Seq=%d, Nonce=%#016x)", p.Seq, p.Nonce)
}

func (p Ping) Marshal(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, p)
}

func (p *Ping) Unmarshal(r io.Reader) error {
	return binary.Read(r, binary.BigEndian, p)
}

// Answer creates the Pong for this Ping.
func (p Ping) Answer() *Pong {
	return &Pong{
		Seq:   p.Seq,
		Nonce: p.Nonce,
	}
}

func (p Pong) Type() uint16 {
	return PONG
}

func (p Pong) String() string {
	return fmt.Sprintf("PONG(Seq=%d, Nonce=%#016x)", p.Seq, p.Nonce)
}

func (p Pong) Marshal(w io.Writer) error {
	return binary.Write(w, binary.BigEndian, p)
}

func (p *Pong) Unmarshal(r io.Reader) error {
	return binary.Read(r, binary.BigEndian, p)
}

// Answers checks if this Pong echoes the given Ping.
func (p Pong) Answers(ping Ping) bool {
	return p.Seq == ping.Seq && p.Nonce == ping.Nonce
}
