// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"net"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/ulikunitz/xz"

	"github.com/wireflow/wireflow-go/pkg/wire"
)

// record accepts one connection and appends its frames to an xz-compressed
// capture file. The capture is the raw frame stream; show re-tokenizes it.
func record(args []string) {
	if len(args) != 2 {
		printUsage()
	}

	listener, err := net.Listen("tcp", args[0])
	if err != nil {
		log.WithError(err).Fatal("Listening errored")
	}

	f, err := os.Create(args[1])
	if err != nil {
		log.WithError(err).Fatal("Creating the capture file errored")
	}

	xzWriter, err := xz.NewWriter(f)
	if err != nil {
		log.WithError(err).Fatal("Creating the xz writer errored")
	}

	log.WithField("listen", args[0]).Info("Waiting for one connection")

	conn, err := listener.Accept()
	if err != nil {
		log.WithError(err).Fatal("Accepting errored")
	}
	_ = listener.Close()

	closeChan := make(chan os.Signal, 1)
	signal.Notify(closeChan, os.Interrupt)

	go func() {
		<-closeChan
		_ = conn.Close()
	}()

	var frames uint64
	tokenizer := wire.NewTokenizer(func(frame []byte) error {
		if _, err := xzWriter.Write(frame); err != nil {
			return err
		}

		frames++
		return nil
	})

	buf := make([]byte, 4096)
	for {
		n, readErr := conn.Read(buf)
		if n > 0 {
			if err := tokenizer.Receive(buf[:n]); err != nil {
				log.WithError(err).Error("Recording errored")
				break
			}
		}
		if readErr != nil {
			break
		}
	}

	if err := xzWriter.Close(); err != nil {
		log.WithError(err).Fatal("Closing the xz writer errored")
	}
	if err := f.Close(); err != nil {
		log.WithError(err).Fatal("Closing the capture file errored")
	}

	log.WithFields(log.Fields{
		"frames": frames,
		"file":   args[1],
	}).Info("Capture finished")
}
