// SPDX-FileCopyrightText: 2026 Jonas Reinhardt
//
// SPDX-License-Identifier: GPL-3.0-or-later

// wireflowd is a quota-enforcing message exchange daemon.
package main

import (
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/pkg/profile"
)

// waitSigint blocks the current thread until a SIGINT appears.
func waitSigint() {
	signalSyn := make(chan os.Signal, 1)
	signalAck := make(chan struct{})

	signal.Notify(signalSyn, os.Interrupt)

	go func() {
		<-signalSyn
		close(signalAck)
	}()

	<-signalAck
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	n, profiling, err := parseNode(os.Args[1])
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Fatal("Failed to parse config")
	}

	if profiling {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	watcher, err := watchConfiguration(os.Args[1], n)
	if err != nil {
		log.WithError(err).Warn("Failed to watch the configuration file")
	}

	waitSigint()
	log.Info("Shutting down..")

	if watcher != nil {
		_ = watcher.Close()
	}

	if err := n.Close(); err != nil {
		log.WithError(err).Error("Shutting the node down errored")
	}
}
