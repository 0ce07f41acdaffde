// SPDX-FileCopyrightText: 2026 Jonas Reinhardt
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package node composes the peer store, the peering manager, discovery and
// the HTTP API into one runnable node.
package node

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hashicorp/go-multierror"

	"github.com/wireflow/wireflow-go/pkg/api"
	"github.com/wireflow/wireflow-go/pkg/discovery"
	"github.com/wireflow/wireflow-go/pkg/flow"
	"github.com/wireflow/wireflow-go/pkg/peering"
	"github.com/wireflow/wireflow-go/pkg/store"
)

// trafficFlushInterval is the period of the cron job persisting the live
// links' traffic counters.
const trafficFlushInterval = 30 * time.Second

// Node is the composition of all parts of a running wireflow node.
type Node struct {
	name      string
	startedAt time.Time

	store   *store.Store
	manager *peering.Manager
	cron    *Cron

	apiServer *api.Server
	discovery *discovery.Manager

	trafficMutex sync.Mutex
	lastTraffic  map[string]peering.LinkInfo

	stopSyn chan struct{}
	stopAck chan struct{}
}

// NewNode creates a Node with an opened Store under storeDir and a started
// peering Manager. Listeners, peers, discovery and the API are attached
// afterwards.
func NewNode(name, storeDir string) (*Node, error) {
	peerStore, err := store.NewStore(storeDir)
	if err != nil {
		return nil, err
	}

	n := &Node{
		name:      name,
		startedAt: time.Now(),

		store:   peerStore,
		manager: peering.NewManager(),
		cron:    NewCron(),

		lastTraffic: make(map[string]peering.LinkInfo),

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}

	if err := n.cron.Register("traffic", n.flushTraffic, trafficFlushInterval); err != nil {
		_ = peerStore.Close()
		return nil, err
	}

	go n.pump()

	return n, nil
}

// Register a Connection or ConnectionProvider with the Node's Manager.
func (n *Node) Register(c peering.Connectable) {
	n.manager.Register(c)
}

// AttachAPI starts the HTTP frontend on the given address.
func (n *Node) AttachAPI(addr string) {
	n.apiServer = api.NewServer(n, addr)

	go func() {
		if err := n.apiServer.Serve(); err != nil {
			log.WithError(err).Error("API server failed")
		}
	}()
}

// AttachDiscovery hands a started discovery Manager over to the Node, which
// takes care of closing it.
func (n *Node) AttachDiscovery(dm *discovery.Manager) {
	n.discovery = dm
}

// pump applies the Manager's Status stream to the store and the API events.
func (n *Node) pump() {
	defer close(n.stopAck)

	for {
		select {
		case <-n.stopSyn:
			return

		case status := <-n.manager.Channel():
			switch status.MessageType {
			case peering.PeerAppeared:
				n.handlePeerAppeared(status)

			case peering.PeerDisappeared:
				n.handlePeerDisappeared(status)

			case peering.DataReceived:
				n.handleDataReceived(status)
			}
		}
	}
}

// handlePeerAppeared persists the new peer and restores its persisted quota,
// which wins over the quota the link was created with.
func (n *Node) handlePeerAppeared(status peering.Status) {
	info := status.Sender.Info()
	name := status.Message.(string)

	record, err := n.store.Touch(name, info.Address, info.InQuota)
	if err != nil {
		log.WithError(err).WithField("peer", name).Warn("Touching PeerRecord failed")
	} else if record.Quota != info.InQuota {
		if err := status.Sender.SetInboundQuota(record.Quota); err != nil {
			log.WithError(err).WithField("peer", name).Warn("Restoring persisted quota failed")
		}
	}

	n.notify(api.Event{Time: time.Now(), Type: api.EventPeerAppeared, Peer: name})
}

func (n *Node) handlePeerDisappeared(status peering.Status) {
	name := status.Message.(string)

	n.flushLink(status.Sender.Info())

	n.trafficMutex.Lock()
	delete(n.lastTraffic, name)
	n.trafficMutex.Unlock()

	n.notify(api.Event{Time: time.Now(), Type: api.EventPeerDisappeared, Peer: name})
}

func (n *Node) handleDataReceived(status peering.Status) {
	data := status.Message.(peering.ReceivedData)

	log.WithFields(log.Fields{
		"peer": data.PeerName,
		"size": len(data.Payload),
	}).Info("Node received data")

	n.notify(api.Event{
		Time: time.Now(),
		Type: api.EventDataReceived,
		Peer: data.PeerName,
		Data: len(data.Payload),
	})
}

func (n *Node) notify(event api.Event) {
	if n.apiServer != nil {
		n.apiServer.Notify(event)
	}
}

// flushTraffic persists the counter deltas of all live links.
func (n *Node) flushTraffic() {
	for _, conn := range n.manager.Links() {
		n.flushLink(conn.Info())
	}
}

// flushLink applies one link's counter delta against its last flushed state.
func (n *Node) flushLink(info peering.LinkInfo) {
	if info.PeerName == "" {
		return
	}

	n.trafficMutex.Lock()
	last := n.lastTraffic[info.PeerName]

	// A reconnected link starts counting from zero again.
	if info.BytesIn < last.BytesIn || info.BytesOut < last.BytesOut {
		last = peering.LinkInfo{}
	}

	bytesIn := info.BytesIn - last.BytesIn
	bytesOut := info.BytesOut - last.BytesOut
	messagesIn := info.MessagesIn - last.MessagesIn
	messagesOut := info.MessagesOut - last.MessagesOut

	n.lastTraffic[info.PeerName] = info
	n.trafficMutex.Unlock()

	if bytesIn == 0 && bytesOut == 0 && messagesIn == 0 && messagesOut == 0 {
		return
	}

	if err := n.store.AddTraffic(info.PeerName, bytesIn, bytesOut, messagesIn, messagesOut); err != nil {
		log.WithError(err).WithField("peer", info.PeerName).Warn("Persisting traffic counters failed")
		return
	}

	n.notify(api.Event{Time: time.Now(), Type: api.EventTraffic, Peer: info.PeerName, Data: info})
}

// NodeName of this node.
func (n *Node) NodeName() string {
	return n.name
}

// StartedAt is the Node's start time.
func (n *Node) StartedAt() time.Time {
	return n.startedAt
}

// Peers merges all persisted PeerRecords with the stats of live links.
func (n *Node) Peers() ([]api.Peer, error) {
	records, err := n.store.QueryAll()
	if err != nil {
		return nil, err
	}

	peers := make([]api.Peer, 0, len(records))
	for _, record := range records {
		peer := api.Peer{Record: record}

		if conn, ok := n.manager.LinkForPeer(record.Name); ok {
			info := conn.Info()
			peer.Link = &info
		}

		peers = append(peers, peer)
	}

	return peers, nil
}

// Peer returns one peer by name, merged with its live link if connected.
func (n *Node) Peer(name string) (api.Peer, error) {
	record, err := n.store.QueryName(name)
	if err != nil {
		return api.Peer{}, fmt.Errorf("unknown peer %s", name)
	}

	peer := api.Peer{Record: record}
	if conn, ok := n.manager.LinkForPeer(name); ok {
		info := conn.Info()
		peer.Link = &info
	}

	return peer, nil
}

// SetPeerQuota persists a peer's inbound quota and, if the peer is connected,
// applies it to the live link, which announces it to the peer.
func (n *Node) SetPeerQuota(name string, quota flow.Rate) error {
	conn, connected := n.manager.LinkForPeer(name)
	if connected {
		if err := conn.SetInboundQuota(quota); err != nil {
			return err
		}
	}

	if err := n.store.SetQuota(name, quota); err != nil {
		if !connected {
			return err
		}

		log.WithError(err).WithField("peer", name).Warn("Persisting quota failed")
	}

	return nil
}

// Close the Node and all attached parts. The Node must not be used afterwards.
func (n *Node) Close() error {
	var result *multierror.Error

	close(n.stopSyn)
	<-n.stopAck

	n.cron.Stop()

	if n.discovery != nil {
		n.discovery.Close()
	}

	if n.apiServer != nil {
		if err := n.apiServer.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	n.flushTraffic()

	if err := n.manager.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := n.store.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}
