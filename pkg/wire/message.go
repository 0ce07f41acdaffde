// SPDX-FileCopyrightText: 2026 Jonas Reinhardt
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"reflect"
)

// Message describes all wireflow messages, which have their body
// serialization and deserialization in common. The Header is not part of a
// Message's Marshal/Unmarshal; Pack and Parse take care of it.
type Message interface {
	// Type is the message's type code for the Header.
	Type() uint16

	Marshal(w io.Writer) error
	Unmarshal(r io.Reader) error
}

// messages maps the message type codes to an example instance of their type.
var messages = map[uint16]Message{
	HELLO:        &Hello{},
	PING:         &Ping{},
	PONG:         &Pong{},
	DATA:         &Data{},
	QUOTA_UPDATE: &QuotaUpdate{},
}

// NewMessage creates an empty Message for the given type code.
func NewMessage(typeCode uint16) (msg Message, err error) {
	msgType, exists := messages[typeCode]
	if !exists {
		err = fmt.Errorf("wire: no Message registered for type code %#04x", typeCode)
		return
	}

	msgElem := reflect.TypeOf(msgType).Elem()
	msg = reflect.New(msgElem).Interface().(Message)
	return
}

// Pack serializes a Message into a complete frame, Header included, ready to
// be written to a peer or fed into a Tokenizer.
func Pack(msg Message) ([]byte, error) {
	var body bytes.Buffer
	if err := msg.Marshal(&body); err != nil {
		return nil, err
	}

	size := HeaderSize + body.Len()
	if size > math.MaxUint16 {
		return nil, fmt.Errorf("wire: message of %d bytes exceeds the frame limit", size)
	}

	frame := make([]byte, size)
	Header{Size: uint16(size), Type: msg.Type()}.Put(frame)
	copy(frame[HeaderSize:], body.Bytes())

	return frame, nil
}

// Parse deserializes a complete frame, e.g., one dispatched by a Tokenizer.
func Parse(raw []byte) (Message, error) {
	h, err := ParseHeader(raw)
	if err != nil {
		return nil, err
	}
	if int(h.Size) != len(raw) {
		return nil, fmt.Errorf("wire: frame length %d does not match declared size %d", len(raw), h.Size)
	}

	msg, err := NewMessage(h.Type)
	if err != nil {
		return nil, err
	}

	if err := msg.Unmarshal(bytes.NewReader(raw[HeaderSize:])); err != nil {
		return nil, fmt.Errorf("wire: unmarshalling %T failed: %w", msg, err)
	}
	return msg, nil
}
