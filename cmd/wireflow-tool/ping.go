// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wireflow/wireflow-go/pkg/flow"
	"github.com/wireflow/wireflow-go/pkg/wire"
)

// pinger manages to send pings over a fresh link and show their answers.
type pinger struct {
	conn      net.Conn
	tokenizer *wire.Tokenizer

	mutex  sync.Mutex
	sentAt map[uint64]time.Time

	closeChan chan os.Signal
	pongChan  chan *wire.Pong
	count     int
}

// writeMessage packs one message onto the pinger's connection.
func (p *pinger) writeMessage(msg wire.Message) error {
	frame, err := wire.Pack(msg)
	if err != nil {
		return err
	}

	_, err = p.conn.Write(frame)
	return err
}

// handleFrame reacts to the peer's messages; only pongs are of interest.
func (p *pinger) handleFrame(frame []byte) error {
	msg, err := wire.Parse(frame)
	if err != nil {
		return err
	}

	if pong, ok := msg.(*wire.Pong); ok {
		p.pongChan <- pong
	}
	return nil
}

// handleRead feeds the connection into the tokenizer.
func (p *pinger) handleRead() {
	buf := make([]byte, 4096)
	for {
		n, err := p.conn.Read(buf)
		if n > 0 {
			if tErr := p.tokenizer.Receive(buf[:n]); tErr != nil {
				log.WithError(tErr).Error("Parsing the peer's data errored")
				close(p.pongChan)
				return
			}
		}
		if err != nil {
			close(p.pongChan)
			return
		}
	}
}

// handle a pinger's task.
func (p *pinger) handle() {
	ticker := time.NewTicker(time.Second)

	defer func() { _ = p.conn.Close() }()
	defer ticker.Stop()

	var seq uint64

	for {
		select {
		case <-p.closeChan:
			return

		case <-ticker.C:
			if p.count == 0 {
				return
			}
			p.count--

			seq++
			ping := wire.Ping{Seq: seq, Nonce: rand.Uint64()}

			p.mutex.Lock()
			p.sentAt[ping.Seq] = time.Now()
			p.mutex.Unlock()

			if err := p.writeMessage(&ping); err != nil {
				log.WithError(err).Error("Cannot send ping")
				return
			}

		case pong, ok := <-p.pongChan:
			if !ok {
				log.Error("Connection was closed")
				return
			}

			p.mutex.Lock()
			sent, known := p.sentAt[pong.Seq]
			delete(p.sentAt, pong.Seq)
			p.mutex.Unlock()

			if !known {
				log.WithField("pong", pong).Warn("Received an unexpected pong")
				continue
			}

			log.WithFields(log.Fields{
				"seq": pong.Seq,
				"rtt": time.Since(sent),
			}).Info("Received pong")
		}
	}
}

// ping another wireflow node.
func ping(args []string) {
	if len(args) != 1 && len(args) != 2 {
		printUsage()
	}

	count := -1
	if len(args) == 2 {
		var err error
		if count, err = strconv.Atoi(args[1]); err != nil || count <= 0 {
			printUsage()
		}
	}

	conn, err := net.Dial("tcp", args[0])
	if err != nil {
		log.WithError(err).Fatal("Dialing errored")
	}

	p := &pinger{
		conn:   conn,
		sentAt: make(map[uint64]time.Time),

		closeChan: make(chan os.Signal, 1),
		pongChan:  make(chan *wire.Pong, 16),
		count:     count,
	}
	p.tokenizer = wire.NewTokenizer(p.handleFrame)

	signal.Notify(p.closeChan, os.Interrupt)

	if err := p.writeMessage(wire.NewHello("wireflow-tool", flow.DefaultRate)); err != nil {
		log.WithError(err).Fatal("Sending HELLO errored")
	}

	go p.handleRead()
	p.handle()
}
