// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package api exposes a node's peers and quotas over REST and streams its
// events over a WebSocket.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/wireflow/wireflow-go/pkg/flow"
)

// Backend is the node state a Server exposes.
type Backend interface {
	// NodeName of this node.
	NodeName() string

	// StartedAt is the node's start time.
	StartedAt() time.Time

	// Peers returns all known peers, connected or not.
	Peers() ([]Peer, error)

	// Peer returns one peer by name.
	Peer(name string) (Peer, error)

	// SetPeerQuota changes the inbound quota granted to a connected peer.
	SetPeerQuota(name string, quota flow.Rate) error
}

// Server is the HTTP frontend for a Backend. It must be started by Serve and
// stopped by Close.
type Server struct {
	backend Backend
	router  *mux.Router
	limiter *rate.Limiter

	httpServer *http.Server
	upgrader   websocket.Upgrader

	eventChan chan Event
	clients   sync.Map // *websocket.Conn -> struct{}

	stopSyn chan struct{}
	stopAck chan struct{}
}

// NewServer creates a Server bound to the given TCP address.
func NewServer(backend Backend, addr string) (server *Server) {
	server = &Server{
		backend: backend,
		router:  mux.NewRouter(),
		limiter: rate.NewLimiter(rate.Limit(50), 100),

		upgrader: websocket.Upgrader{},

		eventChan: make(chan Event, 100),

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}

	server.router.Use(server.limit)
	server.router.HandleFunc("/status", server.handleStatus).Methods(http.MethodGet)
	server.router.HandleFunc("/peers", server.handlePeers).Methods(http.MethodGet)
	server.router.HandleFunc("/peers/{name}", server.handlePeer).Methods(http.MethodGet)
	server.router.HandleFunc("/peers/{name}/quota", server.handleQuota).Methods(http.MethodPut)
	server.router.HandleFunc("/ws", server.handleWebSocket)

	server.httpServer = &http.Server{
		Addr:    addr,
		Handler: server.router,
	}

	go server.eventPump()

	return
}

// Serve blocks on the underlying HTTP server until Close is called or the
// listener fails.
func (server *Server) Serve() error {
	err := server.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Handler returns the Server's routing http.Handler.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Notify queues an Event for the WebSocket stream. Events are dropped when
// the queue is congested.
func (server *Server) Notify(event Event) {
	select {
	case server.eventChan <- event:
	default:
		log.WithField("event", event.Type).Debug("Event queue is congested, dropping event")
	}
}

// Close shuts the HTTP server and the event stream down.
func (server *Server) Close() error {
	close(server.stopSyn)
	<-server.stopAck

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	return server.httpServer.Shutdown(ctx)
}

// limit is a middleware applying the Server's request rate limit.
func (server *Server) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !server.limiter.Allow() {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// eventPump forwards queued Events to all connected WebSocket clients.
func (server *Server) eventPump() {
	defer close(server.stopAck)

	for {
		select {
		case <-server.stopSyn:
			server.clients.Range(func(k, _ interface{}) bool {
				_ = k.(*websocket.Conn).Close()
				return true
			})
			return

		case event := <-server.eventChan:
			server.clients.Range(func(k, _ interface{}) bool {
				conn := k.(*websocket.Conn)
				if err := conn.WriteJSON(event); err != nil {
					log.WithError(err).Debug("Writing to WebSocket client errored, dropping client")

					server.clients.Delete(conn)
					_ = conn.Close()
				}
				return true
			})
		}
	}
}

// handleStatus processes /status GET requests.
func (server *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	peers, err := server.backend.Peers()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	links := 0
	for _, peer := range peers {
		if peer.Link != nil {
			links++
		}
	}

	response := StatusResponse{
		NodeName: server.backend.NodeName(),
		Uptime:   time.Since(server.backend.StartedAt()).Round(time.Second).String(),
		Links:    links,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.WithError(err).Warn("Failed to write status response")
	}
}

// handlePeers processes /peers GET requests.
func (server *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	var response PeersResponse

	if peers, err := server.backend.Peers(); err != nil {
		response.Error = err.Error()
	} else {
		response.Peers = peers
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.WithError(err).Warn("Failed to write peers response")
	}
}

// handlePeer processes /peers/{name} GET requests.
func (server *Server) handlePeer(w http.ResponseWriter, r *http.Request) {
	var response PeerResponse

	name := mux.Vars(r)["name"]
	if peer, err := server.backend.Peer(name); err != nil {
		response.Error = err.Error()
		w.WriteHeader(http.StatusNotFound)
	} else {
		response.Peer = &peer
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.WithError(err).Warn("Failed to write peer response")
	}
}

// handleQuota processes /peers/{name}/quota PUT requests.
func (server *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	var (
		request  QuotaRequest
		response QuotaResponse
	)

	name := mux.Vars(r)["name"]

	if jsonErr := json.NewDecoder(r.Body).Decode(&request); jsonErr != nil {
		response.Error = jsonErr.Error()
		w.WriteHeader(http.StatusBadRequest)
	} else if quota, quotaErr := flow.ParseRate(request.Quota); quotaErr != nil {
		response.Error = quotaErr.Error()
		w.WriteHeader(http.StatusBadRequest)
	} else if applyErr := server.backend.SetPeerQuota(name, quota); applyErr != nil {
		response.Error = applyErr.Error()
		w.WriteHeader(http.StatusNotFound)
	} else {
		response.Quota = quota.String()

		server.Notify(Event{
			Time: time.Now(),
			Type: EventQuotaChanged,
			Peer: name,
			Data: quota.String(),
		})
	}

	log.WithFields(log.Fields{
		"peer":     name,
		"request":  request,
		"response": response,
	}).Info("Processing quota update")

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.WithError(err).Warn("Failed to write quota response")
	}
}

// handleWebSocket upgrades /ws requests and registers the client for the
// event stream.
func (server *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, connErr := server.upgrader.Upgrade(w, r, nil)
	if connErr != nil {
		log.WithError(connErr).Warn("Upgrading HTTP request to WebSocket errored")
		return
	}

	server.clients.Store(conn, struct{}{})

	// Drain the client's read side to notice a disappearing client.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				server.clients.Delete(conn)
				_ = conn.Close()
				return
			}
		}
	}()
}
