// SPDX-FileCopyrightText: 2026 Jonas Reinhardt
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"strings"
	"testing"

	"github.com/wireflow/wireflow-go/pkg/flow"
)

func TestMessagePackParse(t *testing.T) {
	tests := []Message{
		NewHello("alpha", flow.DefaultRate),
		NewHello("", flow.RateUnlimited),
		&Ping{Seq: 23, Nonce: 0xdeadbeef},
		(&Ping{Seq: 23, Nonce: 0xdeadbeef}).Answer(),
		NewData([]byte("hello world")),
		NewData([]byte{}),
		NewQuotaUpdate(65536),
	}

	for _, msg := range tests {
		t.Run(reflect.TypeOf(msg).Elem().Name(), func(t *testing.T) {
			frame, err := Pack(msg)
			if err != nil {
				t.Fatal(err)
			}

			h, err := ParseHeader(frame)
			if err != nil {
				t.Fatal(err)
			}
			if h.Type != msg.Type() || int(h.Size) != len(frame) {
				t.Fatalf("frame header %v does not describe the frame", h)
			}

			parsed, err := Parse(frame)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(parsed, msg) {
				t.Fatalf("parsed %v, packed %v", parsed, msg)
			}
		})
	}
}

func TestMessageUnknownType(t *testing.T) {
	frame := make([]byte, HeaderSize)
	Header{Size: HeaderSize, Type: 0x2342}.Put(frame)

	if _, err := Parse(frame); err == nil {
		t.Fatal("parsing an unknown type code succeeded")
	}
}

func TestMessageSizeMismatch(t *testing.T) {
	frame, err := Pack(&Ping{Seq: 1})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Parse(frame[:len(frame)-1]); err == nil {
		t.Fatal("parsing a truncated frame succeeded")
	}
}

func TestDataChecksum(t *testing.T) {
	data := NewData([]byte("payload under test"))
	if err := data.Verify(); err != nil {
		t.Fatal(err)
	}

	frame, err := Pack(data)
	if err != nil {
		t.Fatal(err)
	}

	// Flip one payload bit on the wire.
	frame[len(frame)-1] ^= 0x01

	parsed, err := Parse(frame)
	if err != nil {
		t.Fatal(err)
	}
	if err := parsed.(*Data).Verify(); err != ErrChecksumMismatch {
		t.Fatalf("Verify returned %v, expected ErrChecksumMismatch", err)
	}
}

func TestHelloNameTooLong(t *testing.T) {
	hello := NewHello(strings.Repeat("x", 256), flow.DefaultRate)
	if _, err := Pack(hello); err == nil {
		t.Fatal("packing an overlong node name succeeded")
	}
}

func TestQuotaUpdateWire(t *testing.T) {
	frame, err := Pack(NewQuotaUpdate(0x01020304))
	if err != nil {
		t.Fatal(err)
	}

	expected := []byte{0x01, 0x02, 0x03, 0x04}
	if !bytes.Equal(frame[HeaderSize:], expected) {
		t.Fatalf("QUOTA_UPDATE body was %x, expected %x", frame[HeaderSize:], expected)
	}
	if size := binary.BigEndian.Uint16(frame); int(size) != len(frame) {
		t.Fatalf("declared size %d, frame length %d", size, len(frame))
	}
}
