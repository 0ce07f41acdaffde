// SPDX-FileCopyrightText: 2026 Jonas Reinhardt
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/howeyc/crc16"
)

// DATA is the type code of the application payload message.
const DATA uint16 = 0x04

// ErrChecksumMismatch is returned when a Data message's checksum does not
// cover its payload. Like ErrCorruptStream, this indicates a broken link.
var ErrChecksumMismatch = errors.New("wire: DATA checksum mismatch")

var crc16table = crc16.MakeTable(crc16.CCITT)

// Data carries an application payload, protected by a CRC-16/CCITT checksum.
type Data struct {
	Checksum uint16
	Payload  []byte
}

// NewData creates a Data message for the payload, with the checksum set.
func NewData(payload []byte) *Data {
	return &Data{
		Checksum: crc16.Checksum(payload, crc16table),
		Payload:  payload,
	}
}

func (d Data) Type() uint16 {
	return DATA
}

func (d Data) String() string {
	return fmt.Sprintf("DATA(Checksum=%#04x, %d bytes payload)", d.Checksum, len(d.Payload))
}

// Verify checks the Checksum against the Payload.
func (d Data) Verify() error {
	if crc16.Checksum(d.Payload, crc16table) != d.Checksum {
		return ErrChecksumMismatch
	}
	return nil
}

func (d Data) Marshal(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, d.Checksum); err != nil {
		return err
	}

	_, err := w.Write(d.Payload)
	return err
}

func (d *Data) Unmarshal(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, &d.Checksum); err != nil {
		return err
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	d.Payload = payload

	return nil
}
