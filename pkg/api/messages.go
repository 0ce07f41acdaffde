// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"time"

	"github.com/wireflow/wireflow-go/pkg/peering"
	"github.com/wireflow/wireflow-go/pkg/store"
)

// StatusResponse describes the JSON response for GET /status.
type StatusResponse struct {
	NodeName string `json:"node_name"`
	Uptime   string `json:"uptime"`
	Links    int    `json:"links"`
}

// Peer merges a persisted PeerRecord with the stats of its live link, if the
// peer is currently connected.
type Peer struct {
	Record store.PeerRecord  `json:"record"`
	Link   *peering.LinkInfo `json:"link,omitempty"`
}

// PeersResponse describes the JSON response for GET /peers.
type PeersResponse struct {
	Error string `json:"error,omitempty"`
	Peers []Peer `json:"peers"`
}

// PeerResponse describes the JSON response for GET /peers/{name}.
type PeerResponse struct {
	Error string `json:"error,omitempty"`
	Peer  *Peer  `json:"peer,omitempty"`
}

// QuotaRequest describes a JSON to be PUT to /peers/{name}/quota. The Quota
// field holds a rate string, e.g., "64 KiB" or "unlimited".
type QuotaRequest struct {
	Quota string `json:"quota"`
}

// QuotaResponse describes the JSON response for PUT /peers/{name}/quota.
type QuotaResponse struct {
	Error string `json:"error,omitempty"`
	Quota string `json:"quota,omitempty"`
}

// Event is one element of the WebSocket event stream under GET /ws.
type Event struct {
	Time time.Time   `json:"time"`
	Type string      `json:"type"`
	Peer string      `json:"peer,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// Event types sent over the WebSocket stream.
const (
	EventPeerAppeared    = "peer_appeared"
	EventPeerDisappeared = "peer_disappeared"
	EventDataReceived    = "data_received"
	EventTraffic         = "traffic"
	EventQuotaChanged    = "quota_changed"
)
