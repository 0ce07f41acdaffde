// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"io"
	"io/ioutil"
	"math/rand"
	"net"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wireflow/wireflow-go/pkg/flow"
	"github.com/wireflow/wireflow-go/pkg/wire"
)

// floodPayloadSize is the payload size of each flood frame.
const floodPayloadSize = 1024

// flood a peer with data frames, self-limited to a quota.
func flood(args []string) {
	if len(args) != 3 {
		printUsage()
	}

	quota, err := flow.ParseRate(args[1])
	if err != nil {
		log.WithError(err).Fatal("Parsing the quota errored")
	}

	seconds, err := strconv.Atoi(args[2])
	if err != nil || seconds <= 0 {
		printUsage()
	}

	conn, err := net.Dial("tcp", args[0])
	if err != nil {
		log.WithError(err).Fatal("Dialing errored")
	}
	defer func() { _ = conn.Close() }()

	// The peer keeps sending pings; drain them.
	go func() { _, _ = io.Copy(ioutil.Discard, conn) }()

	if frame, err := wire.Pack(wire.NewHello("wireflow-tool", flow.DefaultRate)); err != nil {
		log.WithError(err).Fatal("Packing HELLO errored")
	} else if _, err := conn.Write(frame); err != nil {
		log.WithError(err).Fatal("Sending HELLO errored")
	}

	payload := make([]byte, floodPayloadSize)
	rand.Read(payload)

	frame, err := wire.Pack(wire.NewData(payload))
	if err != nil {
		log.WithError(err).Fatal("Packing data errored")
	}

	tracker := flow.NewTracker(nil, quota, flow.DefaultMaxCarrySeconds)

	var (
		sentBytes  uint64
		sentFrames uint64

		start    = time.Now()
		deadline = start.Add(time.Duration(seconds) * time.Second)
	)

	for time.Now().Before(deadline) {
		if delay := tracker.Delay(uint64(len(frame))); delay > 0 {
			if delay == flow.Forever {
				log.Fatal("A zero quota never permits a frame")
			}
			time.Sleep(delay)
		}

		if _, err := conn.Write(frame); err != nil {
			log.WithError(err).Error("Sending data errored")
			break
		}

		if _, err := tracker.Consume(int64(len(frame))); err != nil {
			log.WithError(err).Fatal("Consuming errored")
		}

		sentBytes += uint64(len(frame))
		sentFrames++
	}

	elapsed := time.Since(start)

	log.WithFields(log.Fields{
		"frames":     sentFrames,
		"bytes":      sentBytes,
		"elapsed":    elapsed.Round(time.Millisecond),
		"throughput": flow.Rate(float64(sentBytes) / elapsed.Seconds()).String(),
		"quota":      quota,
		"deficit":    -tracker.Available(),
	}).Info("Flood finished")
}
