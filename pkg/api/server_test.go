// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wireflow/wireflow-go/pkg/flow"
	"github.com/wireflow/wireflow-go/pkg/peering"
	"github.com/wireflow/wireflow-go/pkg/store"
)

// mockBackend holds a fixed peer set in memory.
type mockBackend struct {
	peers map[string]Peer
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		peers: map[string]Peer{
			"alpha": {
				Record: store.PeerRecord{Name: "alpha", Address: "10.0.0.1:35037", Quota: flow.DefaultRate},
				Link:   &peering.LinkInfo{PeerName: "alpha", Address: "10.0.0.1:35037"},
			},
			"bravo": {
				Record: store.PeerRecord{Name: "bravo", Address: "10.0.0.2:35037", Quota: 4096},
			},
		},
	}
}

func (m *mockBackend) NodeName() string     { return "testnode" }
func (m *mockBackend) StartedAt() time.Time { return time.Now().Add(-time.Minute) }

func (m *mockBackend) Peers() (peers []Peer, _ error) {
	for _, peer := range m.peers {
		peers = append(peers, peer)
	}
	return
}

func (m *mockBackend) Peer(name string) (Peer, error) {
	peer, ok := m.peers[name]
	if !ok {
		return Peer{}, fmt.Errorf("unknown peer %s", name)
	}
	return peer, nil
}

func (m *mockBackend) SetPeerQuota(name string, quota flow.Rate) error {
	peer, ok := m.peers[name]
	if !ok {
		return fmt.Errorf("unknown peer %s", name)
	}

	peer.Record.Quota = quota
	m.peers[name] = peer
	return nil
}

func setupTestServer(t *testing.T) (*Server, *httptest.Server) {
	server := NewServer(newMockBackend(), "localhost:0")
	httpServer := httptest.NewServer(server.Handler())

	t.Cleanup(func() {
		httpServer.Close()
		if err := server.Close(); err != nil {
			t.Error(err)
		}
	})

	return server, httpServer
}

func TestServerStatus(t *testing.T) {
	_, httpServer := setupTestServer(t)

	resp, err := http.Get(httpServer.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}

	if status.NodeName != "testnode" {
		t.Fatalf("node name is %s", status.NodeName)
	}
	if status.Links != 1 {
		t.Fatalf("status reports %d links, expected 1", status.Links)
	}
}

func TestServerPeers(t *testing.T) {
	_, httpServer := setupTestServer(t)

	resp, err := http.Get(httpServer.URL + "/peers")
	if err != nil {
		t.Fatal(err)
	}

	var peers PeersResponse
	if err := json.NewDecoder(resp.Body).Decode(&peers); err != nil {
		t.Fatal(err)
	}

	if peers.Error != "" {
		t.Fatal(peers.Error)
	}
	if len(peers.Peers) != 2 {
		t.Fatalf("got %d peers, expected 2", len(peers.Peers))
	}
}

func TestServerPeer(t *testing.T) {
	_, httpServer := setupTestServer(t)

	resp, err := http.Get(httpServer.URL + "/peers/alpha")
	if err != nil {
		t.Fatal(err)
	}

	var peer PeerResponse
	if err := json.NewDecoder(resp.Body).Decode(&peer); err != nil {
		t.Fatal(err)
	}

	if peer.Error != "" {
		t.Fatal(peer.Error)
	}
	if peer.Peer.Record.Name != "alpha" || peer.Peer.Link == nil {
		t.Fatalf("peer response was %v", peer.Peer)
	}

	if resp, err := http.Get(httpServer.URL + "/peers/charlie"); err != nil {
		t.Fatal(err)
	} else if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown peer answered %d", resp.StatusCode)
	}
}

func TestServerQuota(t *testing.T) {
	server, httpServer := setupTestServer(t)

	// Connect a WebSocket client first; the quota change must show up there.
	wsUrl := strings.Replace(httpServer.URL, "http", "ws", 1) + "/ws"
	wsConn, _, err := websocket.DefaultDialer.Dial(wsUrl, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer wsConn.Close()

	// The client is registered after the handshake settles.
	time.Sleep(100 * time.Millisecond)

	requestBuf := new(bytes.Buffer)
	if err := json.NewEncoder(requestBuf).Encode(QuotaRequest{Quota: "8 KiB"}); err != nil {
		t.Fatal(err)
	}

	request, err := http.NewRequest(http.MethodPut, httpServer.URL+"/peers/alpha/quota", requestBuf)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatal(err)
	}

	var quota QuotaResponse
	if err := json.NewDecoder(resp.Body).Decode(&quota); err != nil {
		t.Fatal(err)
	}
	if quota.Error != "" {
		t.Fatal(quota.Error)
	}
	if quota.Quota != "8 KiB" {
		t.Fatalf("applied quota is %s", quota.Quota)
	}

	var event Event
	_ = wsConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if err := wsConn.ReadJSON(&event); err != nil {
		t.Fatal(err)
	}
	if event.Type != EventQuotaChanged || event.Peer != "alpha" {
		t.Fatalf("streamed event was %v", event)
	}

	// An unparsable rate string must be rejected.
	requestBuf.Reset()
	if err := json.NewEncoder(requestBuf).Encode(QuotaRequest{Quota: "12 parsec"}); err != nil {
		t.Fatal(err)
	}

	request, err = http.NewRequest(http.MethodPut, httpServer.URL+"/peers/alpha/quota", requestBuf)
	if err != nil {
		t.Fatal(err)
	}
	if resp, err := http.DefaultClient.Do(request); err != nil {
		t.Fatal(err)
	} else if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bogus quota answered %d", resp.StatusCode)
	}

	server.Notify(Event{Time: time.Now(), Type: EventTraffic, Peer: "alpha"})

	_ = wsConn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if err := wsConn.ReadJSON(&event); err != nil {
		t.Fatal(err)
	}
	if event.Type != EventTraffic {
		t.Fatalf("streamed event was %v", event)
	}
}
