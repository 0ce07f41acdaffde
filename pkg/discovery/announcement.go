// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dtn7/cboring"

	"github.com/wireflow/wireflow-go/pkg/flow"
)

// Protocol names the transport an Announcement advertises.
type Protocol uint

const (
	_ Protocol = iota

	// ProtocolTCP is a TCP listener.
	ProtocolTCP

	// ProtocolQUIC is a QUIC listener.
	ProtocolQUIC
)

func (proto Protocol) String() string {
	switch proto {
	case ProtocolTCP:
		return "tcp"
	case ProtocolQUIC:
		return "quic"
	default:
		return "unknown"
	}
}

// CheckValid returns an error for unknown Protocol values.
func (proto Protocol) CheckValid() error {
	if proto != ProtocolTCP && proto != ProtocolQUIC {
		return fmt.Errorf("unknown discovery protocol %d", uint(proto))
	}
	return nil
}

// Announcement of one of some node's listeners, including the inbound quota
// that listener grants, which seeds the dialer's outbound Tracker.
type Announcement struct {
	Protocol Protocol
	NodeName string
	Port     uint
	Quota    flow.Rate
}

// UnmarshalAnnouncements creates a new array of Announcements based on a
// CBOR byte string.
func UnmarshalAnnouncements(data []byte) (announcements []Announcement, err error) {
	buff := bytes.NewBuffer(data)

	if l, cErr := cboring.ReadArrayLength(buff); cErr != nil {
		err = cErr
		return
	} else {
		announcements = make([]Announcement, l)
	}

	for i := 0; i < len(announcements); i++ {
		if cErr := cboring.Unmarshal(&announcements[i], buff); cErr != nil {
			err = fmt.Errorf("unmarshalling Announcement %d failed: %v", i, cErr)
			return
		}
	}

	return
}

// MarshalAnnouncements into a CBOR byte string.
func MarshalAnnouncements(announcements []Announcement) (data []byte, err error) {
	buff := new(bytes.Buffer)

	if cErr := cboring.WriteArrayLength(uint64(len(announcements)), buff); cErr != nil {
		err = cErr
		return
	}

	for i := range announcements {
		announcement := announcements[i]
		if cErr := cboring.Marshal(&announcement, buff); cErr != nil {
			err = fmt.Errorf("marshalling Announcement %d (%v) failed: %v", i, announcement, cErr)
			return
		}
	}

	data = buff.Bytes()
	return
}

// MarshalCbor creates a CBOR representation for an Announcement.
func (announcement *Announcement) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(4, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(uint64(announcement.Protocol), w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(announcement.NodeName, w); err != nil {
		return fmt.Errorf("marshalling node name failed: %v", err)
	}
	if err := cboring.WriteUInt(uint64(announcement.Port), w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(announcement.Quota), w); err != nil {
		return err
	}

	return nil
}

// UnmarshalCbor creates an Announcement from its CBOR representation.
func (announcement *Announcement) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 4 {
		return fmt.Errorf("wrong array length: %d instead of 4", l)
	}

	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else if proto := Protocol(n); proto.CheckValid() != nil {
		return proto.CheckValid()
	} else {
		announcement.Protocol = proto
	}
	if name, err := cboring.ReadTextString(r); err != nil {
		return fmt.Errorf("unmarshalling node name failed: %v", err)
	} else {
		announcement.NodeName = name
	}
	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		announcement.Port = uint(n)
	}
	if n, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		announcement.Quota = flow.Rate(n)
	}

	return nil
}

func (announcement Announcement) String() string {
	return fmt.Sprintf("Announcement(%v,%s,%d,%v)",
		announcement.Protocol, announcement.NodeName, announcement.Port, announcement.Quota)
}
