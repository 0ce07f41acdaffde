// SPDX-FileCopyrightText: 2026 Jonas Reinhardt
//
// SPDX-License-Identifier: GPL-3.0-or-later

package peering

import "fmt"

// StatusType indicates the kind of a Status.
type StatusType uint

const (
	_ StatusType = iota

	// DataReceived shows the reception of an application payload. The
	// Status' Message must be a ReceivedData struct.
	DataReceived

	// PeerDisappeared shows the disappearance of a peer. The Status' Message
	// must be the peer's name as a string.
	PeerDisappeared

	// PeerAppeared shows the appearance of a peer. The Status' Message must
	// be the peer's name as a string.
	PeerAppeared
)

func (st StatusType) String() string {
	switch st {
	case DataReceived:
		return "Data Received"
	case PeerDisappeared:
		return "Peer Disappeared"
	case PeerAppeared:
		return "Peer Appeared"
	default:
		return "Unknown Type"
	}
}

// Status allows transmission of information via a return channel from a
// Connection to its supervisor.
type Status struct {
	Sender      Connection
	MessageType StatusType
	Message     interface{}
}

func (s Status) String() string {
	return fmt.Sprintf("%v-Status from %v", s.MessageType, s.Sender)
}

// ReceivedData is the Message content of a DataReceived Status.
type ReceivedData struct {
	PeerName string
	Payload  []byte
}

// NewStatusDataReceived creates a Status for a received payload.
func NewStatusDataReceived(sender Connection, peerName string, payload []byte) Status {
	return Status{
		Sender:      sender,
		MessageType: DataReceived,
		Message: ReceivedData{
			PeerName: peerName,
			Payload:  payload,
		},
	}
}

// NewStatusPeerDisappeared creates a Status for a vanished peer.
func NewStatusPeerDisappeared(sender Connection, peerName string) Status {
	return Status{
		Sender:      sender,
		MessageType: PeerDisappeared,
		Message:     peerName,
	}
}

// NewStatusPeerAppeared creates a Status for a peer which completed its
// handshake.
func NewStatusPeerAppeared(sender Connection, peerName string) Status {
	return Status{
		Sender:      sender,
		MessageType: PeerAppeared,
		Message:     peerName,
	}
}
