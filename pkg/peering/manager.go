// SPDX-FileCopyrightText: 2026 Jonas Reinhardt
// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

package peering

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Manager monitors and manages the registered Connections, restarts them if
// necessary, and forwards their Status messages. The recipient can perform
// further actions based on these, but does not have to take care of the
// link administration themselves.
type Manager struct {
	// queueTtl is the amount of retries for a Connection.
	queueTtl int

	// retryTime is the duration between two activation attempts.
	retryTime time.Duration

	// conns maps each Connection's address to a wrapped linkElem struct.
	// conns: Map[string]*linkElem
	conns *sync.Map

	// providers is an array of ConnectionProviders. Those will report their
	// created Connections to this Manager, which also supervises them.
	providers      []ConnectionProvider
	providersMutex sync.Mutex

	// inChnl receives Status messages while outChnl passes them on. outChnl
	// must always be read, otherwise the Manager will block.
	inChnl  chan Status
	outChnl chan Status

	// stop{Syn,Ack} are used to supervise closing this Manager, see Close().
	stopSyn chan struct{}
	stopAck chan struct{}

	// stopFlag and its mutex protect the Manager against acting on new
	// Connections after the Close method was called once.
	stopFlag      bool
	stopFlagMutex sync.Mutex
}

// NewManager creates a new Manager to supervise Connections.
func NewManager() *Manager {
	manager := &Manager{
		queueTtl:  10,
		retryTime: 10 * time.Second,

		conns: new(sync.Map),

		inChnl:  make(chan Status, 100),
		outChnl: make(chan Status),

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}

	go manager.handler()

	return manager
}

// handler is the internal goroutine for management.
func (manager *Manager) handler() {
	activateTicker := time.NewTicker(manager.retryTime)
	defer activateTicker.Stop()

	for {
		select {
		case <-manager.stopSyn:
			log.Debug("Manager received closing signal")

			manager.conns.Range(func(_, elem interface{}) bool {
				manager.Unregister(elem.(*linkElem).conn)
				return true
			})

			manager.providersMutex.Lock()
			for _, provider := range manager.providers {
				_ = provider.Close()
			}
			manager.providersMutex.Unlock()

			close(manager.inChnl)
			close(manager.outChnl)

			close(manager.stopAck)
			return

		case status := <-manager.inChnl:
			log.WithFields(log.Fields{
				"type":   status.MessageType,
				"status": status.String(),
			}).Debug("Manager received Status")

			switch status.MessageType {
			case PeerDisappeared:
				log.WithFields(log.Fields{
					"link": status.Sender,
					"peer": status.Message,
				}).Info("Manager received Peer Disappeared, restarting link")

				manager.Restart(status.Sender)
				manager.outChnl <- status

			default:
				manager.outChnl <- status
			}

		case <-activateTicker.C:
			manager.conns.Range(func(key, elem interface{}) bool {
				le := elem.(*linkElem)
				if le.isActive() {
					return true
				}

				if successful, retry := le.activate(); !successful && !retry {
					log.WithFields(log.Fields{
						"link": le.conn,
					}).Warn("Startup of link failed, a retry should not be made")

					manager.conns.Delete(key)
				}
				return true
			})
		}
	}
}

// Channel references the outgoing channel for Status messages.
func (manager *Manager) Channel() chan Status {
	return manager.outChnl
}

// isStopped signals if the Manager should be stopped.
func (manager *Manager) isStopped() bool {
	manager.stopFlagMutex.Lock()
	defer manager.stopFlagMutex.Unlock()

	return manager.stopFlag
}

// Close the Manager and all supervised Connections.
func (manager *Manager) Close() error {
	manager.stopFlagMutex.Lock()
	manager.stopFlag = true
	manager.stopFlagMutex.Unlock()

	close(manager.stopSyn)
	<-manager.stopAck

	return nil
}

// Register any kind of Connectable.
func (manager *Manager) Register(conn Connectable) {
	if manager.isStopped() {
		return
	}

	if c, ok := conn.(Connection); ok {
		manager.registerConnection(c)
	} else if c, ok := conn.(ConnectionProvider); ok {
		manager.registerProvider(c)
	} else {
		log.WithField("connection", conn).Warn("Unknown kind of Connectable")
	}
}

func (manager *Manager) registerConnection(conn Connection) {
	// Check if this Connection is already known. Re-activate a deactivated
	// one or abort.
	var le *linkElem
	if elem, exists := manager.conns.Load(conn.Address()); exists {
		le = elem.(*linkElem)
		if le.isActive() {
			log.WithFields(log.Fields{
				"link":    conn,
				"address": conn.Address(),
			}).Debug("Link registration failed, because this address does already exist")

			return
		}
	} else {
		le = newLinkElem(conn, manager.inChnl, manager.queueTtl)
	}

	if successful, retry := le.activate(); !successful && !retry {
		log.WithFields(log.Fields{
			"link":    conn,
			"address": conn.Address(),
		}).Warn("Startup of link failed, a retry should not be made")
	} else {
		manager.conns.Store(conn.Address(), le)
	}
}

func (manager *Manager) registerProvider(provider ConnectionProvider) {
	manager.providersMutex.Lock()
	defer manager.providersMutex.Unlock()

	for _, known := range manager.providers {
		if known == provider {
			log.WithField("provider", provider).Debug("Provider registration aborted, already known")
			return
		}
	}

	manager.providers = append(manager.providers, provider)

	provider.RegisterManager(manager)

	if err := provider.Start(); err != nil {
		log.WithError(err).WithField("provider", provider).Warn("Starting provider errored")
	}
}

// Unregister any kind of Connectable.
func (manager *Manager) Unregister(conn Connectable) {
	if c, ok := conn.(Connection); ok {
		manager.unregisterConnection(c)
	} else if c, ok := conn.(ConnectionProvider); ok {
		manager.unregisterProvider(c)
	} else {
		log.WithField("connection", conn).Warn("Unknown kind of Connectable")
	}
}

func (manager *Manager) unregisterConnection(conn Connection) {
	elem, exists := manager.conns.Load(conn.Address())
	if !exists {
		log.WithFields(log.Fields{
			"link":    conn,
			"address": conn.Address(),
		}).Info("Link unregistration failed, this address does not exist")

		return
	}

	elem.(*linkElem).deactivate(manager.queueTtl)
	manager.conns.Delete(conn.Address())
}

func (manager *Manager) unregisterProvider(provider ConnectionProvider) {
	manager.providersMutex.Lock()
	defer manager.providersMutex.Unlock()

	for i, known := range manager.providers {
		if known == provider {
			manager.providers = append(manager.providers[:i], manager.providers[i+1:]...)
			return
		}
	}
}

// Restart a known Connectable.
func (manager *Manager) Restart(conn Connectable) {
	manager.Unregister(conn)
	manager.Register(conn)
}

// Links returns all currently active Connections.
func (manager *Manager) Links() (conns []Connection) {
	manager.conns.Range(func(_, elem interface{}) bool {
		le := elem.(*linkElem)
		if le.isActive() {
			conns = append(conns, le.conn)
		}
		return true
	})
	return
}

// LinkForPeer finds the active Connection whose peer announced the given
// name, if one exists.
func (manager *Manager) LinkForPeer(peerName string) (Connection, bool) {
	var found Connection
	manager.conns.Range(func(_, elem interface{}) bool {
		le := elem.(*linkElem)
		if le.isActive() && le.conn.PeerName() == peerName {
			found = le.conn
			return false
		}
		return true
	})
	return found, found != nil
}

// KnowsAddress checks if a Connection for the address is registered.
func (manager *Manager) KnowsAddress(address string) bool {
	_, exists := manager.conns.Load(address)
	return exists
}
