// SPDX-FileCopyrightText: 2026 Jonas Reinhardt
//
// SPDX-License-Identifier: GPL-3.0-or-later

package peering

import (
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wireflow/wireflow-go/pkg/flow"
)

// TCPListener accepts TCP connections and hands them to its Manager as
// listener-side Links. This struct implements a ConnectionProvider.
type TCPListener struct {
	listenAddress string
	nodeName      string
	inQuota       flow.Rate

	manager *Manager

	stopSyn chan struct{}
	stopAck chan struct{}
}

// NewTCPListener creates a TCPListener for the given listen address. Links
// it provides advertise the given inbound quota to their peers.
func NewTCPListener(listenAddress, nodeName string, inQuota flow.Rate) *TCPListener {
	return &TCPListener{
		listenAddress: listenAddress,
		nodeName:      nodeName,
		inQuota:       inQuota,
		stopSyn:       make(chan struct{}),
		stopAck:       make(chan struct{}),
	}
}

// RegisterManager tells the TCPListener where to report new Links to.
func (listener *TCPListener) RegisterManager(manager *Manager) {
	listener.manager = manager
}

// Start opens the listening socket and begins accepting connections.
func (listener *TCPListener) Start() error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", listener.listenAddress)
	if err != nil {
		return err
	}

	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return err
	}

	go func(ln *net.TCPListener) {
		for {
			select {
			case <-listener.stopSyn:
				_ = ln.Close()
				close(listener.stopAck)

				return

			default:
				if err := ln.SetDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
					log.WithFields(log.Fields{
						"listener": listener,
						"error":    err,
					}).Warn("TCPListener failed to set deadline on TCP socket")

					_ = listener.Close()
				} else if conn, err := ln.Accept(); err == nil {
					log.WithFields(log.Fields{
						"listener": listener,
						"peer":     conn.RemoteAddr(),
					}).Debug("TCPListener accepted a connection")

					link := newConnLink(conn, "tcp", conn.RemoteAddr().String(),
						listener.nodeName, listener.inQuota)
					go listener.manager.Register(link)
				}
			}
		}
	}(ln)

	return nil
}

// Close shuts the TCPListener down.
func (listener *TCPListener) Close() error {
	close(listener.stopSyn)
	<-listener.stopAck

	return nil
}

func (listener TCPListener) String() string {
	return fmt.Sprintf("tcp://%s", listener.listenAddress)
}
