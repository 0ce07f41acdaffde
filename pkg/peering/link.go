// SPDX-FileCopyrightText: 2026 Jonas Reinhardt
// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

package peering

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wireflow/wireflow-go/pkg/flow"
	"github.com/wireflow/wireflow-go/pkg/wire"
)

// pingInterval is the keepalive cadence on an established Link.
const pingInterval = 10 * time.Second

// readBufferSize is the scratch buffer handed to the transport's Read; the
// Tokenizer reassembles messages across those chunks.
const readBufferSize = 4096

// ErrLinkClosed is returned by Send when the Link shut down while waiting
// for quota or before the transmission finished.
var ErrLinkClosed = errors.New("peering: link is closed")

// LinkInfo is a point-in-time snapshot of a Link's state for introspection.
type LinkInfo struct {
	PeerName string        `json:"peer_name"`
	Address  string        `json:"address"`
	Protocol string        `json:"protocol"`
	RTT      time.Duration `json:"rtt"`
	LastSeen time.Time     `json:"last_seen"`

	BytesIn      uint64 `json:"bytes_in"`
	BytesOut     uint64 `json:"bytes_out"`
	MessagesIn   uint64 `json:"messages_in"`
	MessagesOut  uint64 `json:"messages_out"`
	ExcessEvents uint64 `json:"excess_events"`

	InQuota      flow.Rate     `json:"in_quota"`
	OutQuota     flow.Rate     `json:"out_quota"`
	OutAvailable int64         `json:"out_available"`
	OutDelay     time.Duration `json:"out_delay"`
}

// Link is one message connection to a peer, implementing Connection. Its
// outbound Tracker is seeded with a default quota and re-configured by the
// peer's HELLO and QUOTA_UPDATE messages; its inbound Tracker accounts what
// the peer sends against the quota this node granted.
type Link struct {
	nodeName string
	protocol string
	address  string

	permanent bool
	dialer    bool
	started   bool

	// dial establishes the transport for dialer-side Links; listener-side
	// Links are created around an accepted conn instead.
	dial func() (io.ReadWriteCloser, error)
	conn io.ReadWriteCloser

	outTracker *flow.Tracker
	inTracker  *flow.Tracker
	tokenizer  *wire.Tokenizer

	// seedOutQuota is the outbound quota assumed until the peer's HELLO
	// arrives, e.g., learned from a discovery announcement.
	seedOutQuota flow.Rate

	reportChan chan Status
	wakeSend   chan struct{}

	// mutex guards conn writes and the mutable fields below.
	mutex        sync.Mutex
	peerName     string
	greeted      bool
	pingSeq      uint64
	pingNonce    uint64
	pingSent     time.Time
	rtt          time.Duration
	lastSeen     time.Time
	bytesIn      uint64
	bytesOut     uint64
	messagesIn   uint64
	messagesOut  uint64
	excessEvents uint64

	stopSyn  chan struct{}
	stopAck  chan struct{}
	readDone chan struct{}
}

// NewTCPLink creates a dialer-side Link to the given TCP address. The
// inQuota is the inbound quota advertised to the peer in the handshake. The
// permanent flag indicates if this Link should never be removed from the
// Manager.
func NewTCPLink(address, nodeName string, inQuota flow.Rate, permanent bool) *Link {
	link := newLink("tcp", address, nodeName, inQuota, permanent)
	link.dialer = true
	link.dial = func() (io.ReadWriteCloser, error) {
		conn, err := dial(address)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	return link
}

// newConnLink creates a listener-side Link around an accepted connection.
func newConnLink(conn io.ReadWriteCloser, protocol, address, nodeName string, inQuota flow.Rate) *Link {
	link := newLink(protocol, address, nodeName, inQuota, false)
	link.conn = conn
	return link
}

func newLink(protocol, address, nodeName string, inQuota flow.Rate, permanent bool) *Link {
	link := &Link{
		nodeName:  nodeName,
		protocol:  protocol,
		address:   address,
		permanent: permanent,
	}

	link.seedOutQuota = flow.DefaultRate
	link.inTracker = flow.NewTracker(nil, inQuota, flow.DefaultMaxCarrySeconds)
	link.tokenizer = wire.NewTokenizer(link.handleFrame)

	return link
}

// SeedOutboundQuota sets the outbound quota assumed before the peer's HELLO,
// e.g., from a discovery announcement. Only effective before Start.
func (link *Link) SeedOutboundQuota(quota flow.Rate) {
	link.seedOutQuota = quota
}

// Start establishes the Link: dialing first if necessary, then starting the
// read loop and the keepalive handler, which opens with a HELLO.
func (link *Link) Start() (err error, retry bool) {
	retry = true

	if link.dialer {
		conn, dialErr := link.dial()
		if dialErr != nil {
			err = dialErr
			return
		}
		link.conn = conn
	} else if link.started {
		// A listener-side Link has no way to re-establish its transport.
		return ErrLinkClosed, false
	}
	link.started = true

	// A fresh transport must not inherit a stale partial message.
	link.tokenizer.Reset()

	link.outTracker = flow.NewNotifyingTracker(
		link.wakeSender, link.seedOutQuota, flow.DefaultMaxCarrySeconds, link.excessNoted)

	link.reportChan = make(chan Status)
	link.wakeSend = make(chan struct{}, 1)
	link.stopSyn = make(chan struct{})
	link.stopAck = make(chan struct{})
	link.readDone = make(chan struct{})

	go link.readLoop()
	go link.handler()

	return
}

// wakeSender nudges a Send waiting for quota, e.g., after a quota update.
func (link *Link) wakeSender() {
	select {
	case link.wakeSend <- struct{}{}:
	default:
	}
}

// excessNoted runs when banked outbound credit is about to hit the carry cap.
func (link *Link) excessNoted() {
	link.mutex.Lock()
	link.excessEvents++
	link.mutex.Unlock()

	log.WithFields(log.Fields{
		"link": link.String(),
	}).Debug("Link's banked bandwidth reached the carry window")
}

// handler supervises the Link: it introduces this node with a HELLO, sends
// keepalive pings and coordinates the shutdown.
func (link *Link) handler() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	if err := link.sendHello(); err != nil {
		log.WithFields(log.Fields{
			"link":  link.String(),
			"error": err,
		}).Warn("Link failed to send HELLO")
	}

	for {
		select {
		case <-link.stopSyn:
			link.outTracker.StopNotifications()
			_ = link.conn.Close()
			<-link.readDone

			close(link.reportChan)
			close(link.stopAck)
			return

		case <-ticker.C:
			if err := link.sendPing(); err != nil {
				log.WithFields(log.Fields{
					"link":  link.String(),
					"error": err,
				}).Warn("Link's keepalive errored")

				link.reportDisappeared()
			}
		}
	}
}

// readLoop feeds everything the transport delivers into the Tokenizer.
func (link *Link) readLoop() {
	defer close(link.readDone)

	buf := make([]byte, readBufferSize)
	for {
		n, err := link.conn.Read(buf)
		if n > 0 {
			if _, cErr := link.inTracker.Consume(int64(n)); cErr != nil {
				log.WithFields(log.Fields{
					"link":  link.String(),
					"error": cErr,
				}).Warn("Link's inbound accounting errored")
			}
			link.mutex.Lock()
			link.bytesIn += uint64(n)
			link.mutex.Unlock()

			if tErr := link.tokenizer.Receive(buf[:n]); tErr != nil {
				log.WithFields(log.Fields{
					"link":  link.String(),
					"error": tErr,
				}).Warn("Link's inbound stream is corrupt, tearing down")

				link.reportDisappeared()
				return
			}
		}
		if err != nil {
			select {
			case <-link.stopSyn:
			default:
				log.WithFields(log.Fields{
					"link":  link.String(),
					"error": err,
				}).Debug("Link's transport read errored")

				link.reportDisappeared()
			}
			return
		}
	}
}

// reportDisappeared reports the peer gone, unless the Link is stopping
// anyway.
func (link *Link) reportDisappeared() {
	select {
	case <-link.stopSyn:
	case link.reportChan <- NewStatusPeerDisappeared(link, link.PeerName()):
	}
}

// handleFrame is the Tokenizer's handler, invoked once per complete message.
// A non-nil error marks the stream corrupt and tears the Link down.
func (link *Link) handleFrame(frame []byte) error {
	msg, err := wire.Parse(frame)
	if err != nil {
		// An unknown or broken single message does not compromise the
		// stream's framing; log and carry on.
		log.WithFields(log.Fields{
			"link":  link.String(),
			"error": err,
		}).Warn("Link received an unparsable message")
		return nil
	}

	link.mutex.Lock()
	link.messagesIn++
	link.lastSeen = time.Now()
	link.mutex.Unlock()

	switch m := msg.(type) {
	case *wire.Hello:
		link.mutex.Lock()
		link.peerName = m.NodeName
		first := !link.greeted
		link.greeted = true
		link.mutex.Unlock()

		link.outTracker.UpdateQuota(m.Quota)

		log.WithFields(log.Fields{
			"link":  link.String(),
			"peer":  m.NodeName,
			"quota": m.Quota,
		}).Info("Link completed handshake")

		if first {
			select {
			case link.reportChan <- NewStatusPeerAppeared(link, m.NodeName):
			case <-link.stopSyn:
			}
		}

	case *wire.Ping:
		if frame, pErr := wire.Pack(m.Answer()); pErr == nil {
			_ = link.writeFrame(frame)
		}

	case *wire.Pong:
		link.mutex.Lock()
		if m.Answers(wire.Ping{Seq: link.pingSeq, Nonce: link.pingNonce}) {
			link.rtt = time.Since(link.pingSent)
		}
		link.mutex.Unlock()

	case *wire.Data:
		if vErr := m.Verify(); vErr != nil {
			return vErr
		}
		select {
		case link.reportChan <- NewStatusDataReceived(link, link.PeerName(), m.Payload):
		case <-link.stopSyn:
		}

	case *wire.QuotaUpdate:
		log.WithFields(log.Fields{
			"link":  link.String(),
			"quota": m.Quota,
		}).Debug("Link received a quota update")

		link.outTracker.UpdateQuota(m.Quota)
	}

	return nil
}

// sendHello introduces this node and its granted inbound quota.
func (link *Link) sendHello() error {
	frame, err := wire.Pack(wire.NewHello(link.nodeName, link.inTracker.Rate()))
	if err != nil {
		return err
	}
	return link.writeFrame(frame)
}

// sendPing emits a keepalive probe.
func (link *Link) sendPing() error {
	link.mutex.Lock()
	link.pingSeq++
	link.pingNonce = rand.Uint64()
	link.pingSent = time.Now()
	ping := wire.Ping{Seq: link.pingSeq, Nonce: link.pingNonce}
	link.mutex.Unlock()

	frame, err := wire.Pack(&ping)
	if err != nil {
		return err
	}
	return link.writeFrame(frame)
}

// writeFrame transmits one frame and accounts it against the outbound quota.
// Control messages use it directly; Send waits for the quota first.
func (link *Link) writeFrame(frame []byte) error {
	link.mutex.Lock()
	_, err := link.conn.Write(frame)
	if err == nil {
		link.bytesOut += uint64(len(frame))
		link.messagesOut++
	}
	link.mutex.Unlock()

	if err == nil {
		_, err = link.outTracker.Consume(int64(len(frame)))
	}
	return err
}

// waitQuota blocks until the outbound quota covers size bytes, the quota
// changed (re-evaluating), or the Link closes.
func (link *Link) waitQuota(size uint64) error {
	for {
		delay := link.outTracker.Delay(size)
		if delay == 0 {
			return nil
		}

		var timerChan <-chan time.Time
		var timer *time.Timer
		if delay != flow.Forever {
			timer = time.NewTimer(delay)
			timerChan = timer.C
		}

		select {
		case <-timerChan:
		case <-link.wakeSend:
		case <-link.stopSyn:
			if timer != nil {
				timer.Stop()
			}
			return ErrLinkClosed
		}

		if timer != nil {
			timer.Stop()
		}
	}
}

// Send wraps the payload in a DATA message and transmits it once the
// outbound quota permits.
func (link *Link) Send(payload []byte) (err error) {
	defer func() {
		// In case of a transmission error, report our failure upstream.
		if err != nil && err != ErrLinkClosed {
			link.reportDisappeared()
		}
	}()

	frame, err := wire.Pack(wire.NewData(payload))
	if err != nil {
		return err
	}

	if err = link.waitQuota(uint64(len(frame))); err != nil {
		return err
	}

	return link.writeFrame(frame)
}

// SetInboundQuota changes the quota granted to the peer and announces it
// with a QUOTA_UPDATE message.
func (link *Link) SetInboundQuota(quota flow.Rate) error {
	link.inTracker.UpdateQuota(quota)

	frame, err := wire.Pack(wire.NewQuotaUpdate(quota))
	if err != nil {
		return err
	}
	return link.writeFrame(frame)
}

// Info snapshots the Link's counters and trackers.
func (link *Link) Info() LinkInfo {
	link.mutex.Lock()
	info := LinkInfo{
		PeerName: link.peerName,
		Address:  link.address,
		Protocol: link.protocol,
		RTT:      link.rtt,
		LastSeen: link.lastSeen,

		BytesIn:      link.bytesIn,
		BytesOut:     link.bytesOut,
		MessagesIn:   link.messagesIn,
		MessagesOut:  link.messagesOut,
		ExcessEvents: link.excessEvents,
	}
	link.mutex.Unlock()

	info.InQuota = link.inTracker.Rate()
	info.OutQuota = link.outTracker.Rate()
	info.OutAvailable = link.outTracker.Available()
	info.OutDelay = link.outTracker.Delay(0)

	return info
}

// Channel references the outgoing channel for Status messages.
func (link *Link) Channel() chan Status {
	return link.reportChan
}

// Close shuts the Link down. It must only be called once, after Start
// succeeded.
func (link *Link) Close() error {
	close(link.stopSyn)
	<-link.stopAck

	return nil
}

// PeerName returns the name from the peer's HELLO, if already received.
func (link *Link) PeerName() string {
	link.mutex.Lock()
	defer link.mutex.Unlock()

	return link.peerName
}

// Address of the peer's endpoint.
func (link *Link) Address() string {
	return link.address
}

// IsPermanent returns true if this Link should be kept alive by its Manager.
func (link *Link) IsPermanent() bool {
	return link.permanent
}

func (link *Link) String() string {
	return fmt.Sprintf("%s://%s", link.protocol, link.address)
}
