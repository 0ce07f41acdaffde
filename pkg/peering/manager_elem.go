// SPDX-FileCopyrightText: 2026 Jonas Reinhardt
//
// SPDX-License-Identifier: GPL-3.0-or-later

package peering

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// linkElem is a wrapper around a Connection to assign a status, supervised
// by a Manager.
type linkElem struct {
	// conn is the wrapped Connection.
	conn Connection

	// mutex protects critical parts.
	mutex sync.Mutex

	// statusChnl is the Manager's inChnl.
	statusChnl chan Status

	// ttl is used both for determining the activity and for counting-off.
	// A negative ttl implies an active linkElem.
	ttl int

	// stop{Syn,Ack} are used to supervise closing this linkElem, see
	// deactivate().
	stopSyn chan struct{}
	stopAck chan struct{}
}

// newLinkElem creates a new linkElem for a Connection with an initial ttl.
func newLinkElem(conn Connection, statusChnl chan Status, ttl int) *linkElem {
	return &linkElem{
		conn:       conn,
		statusChnl: statusChnl,
		ttl:        ttl,
	}
}

// isActive returns if this linkElem wraps an active Connection.
func (le *linkElem) isActive() bool {
	return le.ttl < 0
}

// handler supervises both stopping and Status forwarding to the Manager.
func (le *linkElem) handler() {
	for {
		select {
		case <-le.stopSyn:
			log.WithFields(log.Fields{
				"link": le.conn,
			}).Debug("Closing link's handler")

			close(le.stopAck)
			return

		case status := <-le.conn.Channel():
			log.WithFields(log.Fields{
				"link":   le.conn,
				"status": status.String(),
			}).Debug("Forwarding Status to Manager")

			le.statusChnl <- status
		}
	}
}

// activate tries to start this linkElem. Both a success message and an
// indicator for a new attempt are returned.
func (le *linkElem) activate() (successful, retry bool) {
	if le.isActive() {
		return
	}

	le.mutex.Lock()
	defer le.mutex.Unlock()

	if le.ttl == 0 && !le.conn.IsPermanent() {
		log.WithFields(log.Fields{
			"link":  le.conn,
			"error": "TTL expired",
		}).Info("Failed to start link")

		return false, false
	}

	connErr, connRetry := le.conn.Start()
	if connErr == nil {
		log.WithFields(log.Fields{
			"link": le.conn,
		}).Info("Started link")

		le.ttl = -1

		le.stopSyn = make(chan struct{})
		le.stopAck = make(chan struct{})
		go le.handler()

		return true, false
	} else {
		log.WithFields(log.Fields{
			"link":      le.conn,
			"permanent": le.conn.IsPermanent(),
			"ttl":       le.ttl,
			"retry":     connRetry,
			"error":     connErr,
		}).Info("Failed to start link")

		if connRetry {
			le.ttl -= 1
		} else {
			le.ttl = 0
		}

		return false, connRetry
	}
}

// deactivate marks this linkElem as deactivated with a new ttl.
func (le *linkElem) deactivate(ttl int) {
	if !le.isActive() {
		return
	}

	log.WithFields(log.Fields{
		"link": le.conn,
	}).Info("Deactivating link")

	_ = le.conn.Close()

	close(le.stopSyn)
	<-le.stopAck

	le.ttl = ttl
}
