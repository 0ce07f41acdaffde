// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/websocket"

	"github.com/wireflow/wireflow-go/pkg/api"
)

// watch a wireflowd's event stream.
func watch(args []string) {
	if len(args) != 1 {
		printUsage()
	}

	wsUrl := fmt.Sprintf("ws://%s/ws", args[0])
	conn, _, err := websocket.DefaultDialer.Dial(wsUrl, nil)
	if err != nil {
		log.WithError(err).Fatal("Dialing the WebSocket errored")
	}

	closeChan := make(chan os.Signal, 1)
	signal.Notify(closeChan, os.Interrupt)

	go func() {
		<-closeChan
		_ = conn.Close()
	}()

	for {
		var event api.Event
		if err := conn.ReadJSON(&event); err != nil {
			log.WithError(err).Info("Event stream was closed")
			return
		}

		log.WithFields(log.Fields{
			"time": event.Time.Format("15:04:05.000"),
			"peer": event.Peer,
			"data": event.Data,
		}).Info(event.Type)
	}
}
