// SPDX-FileCopyrightText: 2026 Jonas Reinhardt
// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

package peering

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/wireflow/wireflow-go/pkg/flow"
	"github.com/wireflow/wireflow-go/pkg/wire"
)

// waitStatus expects the next Status of the given type on the channel.
func waitStatus(t *testing.T, ch chan Status, expected StatusType) Status {
	t.Helper()

	for {
		select {
		case status := <-ch:
			if status.MessageType == expected {
				return status
			}

		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for a %v Status", expected)
		}
	}
}

// pipeLinkPair wires two Links over an in-memory connection and starts both.
func pipeLinkPair(t *testing.T, quotaA, quotaB flow.Rate) (linkA, linkB *Link) {
	t.Helper()

	connA, connB := net.Pipe()

	linkA = newConnLink(connA, "pipe", "pipe-a", "alpha", quotaA)
	linkB = newConnLink(connB, "pipe", "pipe-b", "bravo", quotaB)

	if err, _ := linkA.Start(); err != nil {
		t.Fatal(err)
	}
	if err, _ := linkB.Start(); err != nil {
		t.Fatal(err)
	}

	return
}

func TestLinkHandshakeAndData(t *testing.T) {
	linkA, linkB := pipeLinkPair(t, 1<<20, 1<<20)
	defer linkA.Close()
	defer linkB.Close()

	statusA := waitStatus(t, linkA.Channel(), PeerAppeared)
	if statusA.Message.(string) != "bravo" {
		t.Fatalf("link A's peer introduced itself as %v", statusA.Message)
	}
	waitStatus(t, linkB.Channel(), PeerAppeared)

	if peer := linkA.PeerName(); peer != "bravo" {
		t.Fatalf("link A's peer name was %q", peer)
	}

	payload := []byte("across the wire")
	go func() {
		_ = linkA.Send(payload)
	}()

	status := waitStatus(t, linkB.Channel(), DataReceived)
	received := status.Message.(ReceivedData)
	if received.PeerName != "alpha" {
		t.Fatalf("payload attributed to %q", received.PeerName)
	}
	if !bytes.Equal(received.Payload, payload) {
		t.Fatalf("payload was %q", received.Payload)
	}
}

func TestLinkQuotaRoundTrip(t *testing.T) {
	linkA, linkB := pipeLinkPair(t, 1<<20, 4096)
	defer linkA.Close()
	defer linkB.Close()

	waitStatus(t, linkA.Channel(), PeerAppeared)
	waitStatus(t, linkB.Channel(), PeerAppeared)

	// B advertised 4096 B/s inbound, so A's outbound Tracker follows it.
	if quota := linkA.Info().OutQuota; quota != 4096 {
		t.Fatalf("link A's outbound quota was %v after the handshake", quota)
	}

	// Raising B's granted quota must propagate to A's outbound Tracker.
	if err := linkB.SetInboundQuota(8192); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for linkA.Info().OutQuota != 8192 {
		if time.Now().After(deadline) {
			t.Fatalf("link A's outbound quota stayed at %v", linkA.Info().OutQuota)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// rawLink builds one Link whose peer is driven by hand in the test.
func rawLink(t *testing.T) (link *Link, peer net.Conn) {
	t.Helper()

	connLink, connPeer := net.Pipe()

	link = newConnLink(connLink, "pipe", "pipe-raw", "alpha", flow.DefaultRate)
	if err, _ := link.Start(); err != nil {
		t.Fatal(err)
	}

	// Discard everything the Link sends, e.g., its HELLO.
	go func() {
		_, _ = io.Copy(io.Discard, connPeer)
	}()

	return link, connPeer
}

func TestLinkCorruptStreamTeardown(t *testing.T) {
	link, peer := rawLink(t)
	defer link.Close()

	// A declared size below the header size can never be valid.
	malformed := make([]byte, wire.HeaderSize)
	binary.BigEndian.PutUint16(malformed, wire.HeaderSize-2)
	if _, err := peer.Write(malformed); err != nil {
		t.Fatal(err)
	}

	waitStatus(t, link.Channel(), PeerDisappeared)
}

func TestLinkChecksumTeardown(t *testing.T) {
	link, peer := rawLink(t)
	defer link.Close()

	frame, err := wire.Pack(wire.NewData([]byte("payload")))
	if err != nil {
		t.Fatal(err)
	}
	// Flip a payload bit so the checksum no longer covers it.
	frame[len(frame)-1] ^= 0x01

	if _, err := peer.Write(frame); err != nil {
		t.Fatal(err)
	}

	waitStatus(t, link.Channel(), PeerDisappeared)
}

func TestLinkSendWaitsForQuota(t *testing.T) {
	linkA, linkB := pipeLinkPair(t, 1<<20, 1<<20)
	defer linkA.Close()
	defer linkB.Close()

	waitStatus(t, linkA.Channel(), PeerAppeared)
	waitStatus(t, linkB.Channel(), PeerAppeared)

	// Burn A's outbound quota far beyond the carry window, then verify a
	// Send is not through instantly.
	if _, err := linkA.outTracker.Consume(1 << 21); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- linkA.Send([]byte("must wait"))
	}()

	select {
	case err := <-done:
		t.Fatalf("Send finished during the quota backlog: %v", err)
	case <-time.After(250 * time.Millisecond):
	}
}
