// SPDX-FileCopyrightText: 2026 Jonas Reinhardt
// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package peering maintains rate-limited message links between wireflow
// nodes. A Link couples one transport connection with an outbound bandwidth
// Tracker gating its sends and a Tokenizer reassembling its inbound stream.
//
// Listeners for the supported transports hand accepted connections to a
// Manager, which supervises all Links, restarts failed dialers and forwards
// their Status messages on a single channel.
package peering

import "github.com/wireflow/wireflow-go/pkg/flow"

// Connectable describes any kind of type which supports peering-related
// services, either a Connection or a ConnectionProvider.
type Connectable interface {
	// Close signals this Connectable to shut down.
	Close() error
}

// Connection is one supervised link to a peer.
type Connection interface {
	Connectable

	// Start this Connection and might return an error and a boolean
	// indicating if another Start should be tried later.
	Start() (error, bool)

	// Channel represents a return channel for received payloads, status
	// messages, etc.
	Channel() chan Status

	// Address returns a unique address string to both identify this
	// Connection and ensure it will not be opened twice.
	Address() string

	// IsPermanent returns true if this Connection should not be removed
	// after failures.
	IsPermanent() bool

	// PeerName returns the name the peer announced in its handshake, or an
	// empty string before that.
	PeerName() string

	// Send transmits an application payload to the peer, waiting for the
	// outbound quota to cover it first.
	Send(payload []byte) error

	// Info returns a snapshot of this Connection's counters and trackers.
	Info() LinkInfo

	// SetInboundQuota changes the quota this node grants the peer and
	// announces the change on the wire.
	SetInboundQuota(quota flow.Rate) error
}

// ConnectionProvider is a service which does not carry messages itself but
// supplies new Connections, e.g., a listening socket. Provided Connections
// are passed to a Manager, which also supervises the provider.
type ConnectionProvider interface {
	Connectable

	// RegisterManager tells the ConnectionProvider where to report new
	// Connections to.
	RegisterManager(*Manager)

	// Start this ConnectionProvider. RegisterManager is called beforehand;
	// the Manager takes care of both calls.
	Start() error
}
