// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/ulikunitz/xz"

	"github.com/wireflow/wireflow-go/pkg/wire"
)

// show prints a human-readable version of a capture file written by record.
func show(args []string) {
	if len(args) != 1 {
		printUsage()
	}

	f, err := os.Open(args[0])
	if err != nil {
		log.WithError(err).Fatal("Opening the capture file errored")
	}
	defer func() { _ = f.Close() }()

	xzReader, err := xz.NewReader(f)
	if err != nil {
		log.WithError(err).Fatal("Creating the xz reader errored")
	}

	var frames, dataBytes uint64
	tokenizer := wire.NewTokenizer(func(frame []byte) error {
		frames++

		msg, err := wire.Parse(frame)
		if err != nil {
			fmt.Printf("%6d: unparsable frame of %d bytes: %v\n", frames, len(frame), err)
			return nil
		}

		if data, ok := msg.(*wire.Data); ok {
			dataBytes += uint64(len(data.Payload))
		}

		fmt.Printf("%6d: %v\n", frames, msg)
		return nil
	})

	buf := make([]byte, 4096)
	for {
		n, readErr := xzReader.Read(buf)
		if n > 0 {
			if err := tokenizer.Receive(buf[:n]); err != nil {
				log.WithError(err).Fatal("Parsing the capture errored")
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			log.WithError(readErr).Fatal("Reading the capture errored")
		}
	}

	fmt.Printf("\n%d frames, %d data bytes\n", frames, dataBytes)
}
