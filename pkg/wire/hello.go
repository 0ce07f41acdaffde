// SPDX-FileCopyrightText: 2026 Jonas Reinhardt
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/wireflow/wireflow-go/pkg/flow"
)

// HELLO is the type code of the handshake message.
const HELLO uint16 = 0x01

// Hello is the first message both sides of a fresh connection send. It names
// the sending node and advertises its inbound quota, which the receiver
// applies to its outbound bandwidth Tracker for this link.
type Hello struct {
	NodeName string
	Quota    flow.Rate
}

// NewHello creates a Hello for the given node name and inbound quota.
func NewHello(nodeName string, quota flow.Rate) *Hello {
	return &Hello{
		NodeName: nodeName,
		Quota:    quota,
	}
}

func (h Hello) Type() uint16 {
	return HELLO
}

func (h Hello) String() string {
	return fmt.Sprintf("HELLO(Node=%s, Quota=%v)", h.NodeName, h.Quota)
}

func (h Hello) Marshal(w io.Writer) error {
	if len(h.NodeName) > math.MaxUint8 {
		return fmt.Errorf("HELLO's node name of %d bytes is too long", len(h.NodeName))
	}

	var fields = []interface{}{uint32(h.Quota), uint8(len(h.NodeName)), []byte(h.NodeName)}

	for _, field := range fields {
		if err := binary.Write(w, binary.BigEndian, field); err != nil {
			return err
		}
	}

	return nil
}

func (h *Hello) Unmarshal(r io.Reader) error {
	var quota uint32
	if err := binary.Read(r, binary.BigEndian, &quota); err != nil {
		return err
	}
	h.Quota = flow.Rate(quota)

	var nameLen uint8
	if err := binary.Read(r, binary.BigEndian, &nameLen); err != nil {
		return err
	}

	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return err
	}
	h.NodeName = string(name)

	return nil
}
