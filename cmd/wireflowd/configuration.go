// SPDX-FileCopyrightText: 2026 Jonas Reinhardt
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"github.com/wireflow/wireflow-go/pkg/discovery"
	"github.com/wireflow/wireflow-go/pkg/flow"
	"github.com/wireflow/wireflow-go/pkg/node"
	"github.com/wireflow/wireflow-go/pkg/peering"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Node      nodeConf
	Logging   logConf
	API       apiConf `toml:"api"`
	Discovery discoveryConf
	Listen    []linkConf
	Peer      []linkConf
}

// nodeConf describes the Node-configuration block.
type nodeConf struct {
	Name      string
	Store     string
	Profiling bool
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// apiConf describes the API-configuration block.
type apiConf struct {
	Listen string
}

// discoveryConf describes the Discovery-configuration block.
type discoveryConf struct {
	IPv4     bool
	IPv6     bool
	Interval uint

	// Quota is the inbound quota granted to discovered peers.
	Quota string
}

// linkConf describes one "listen" or "peer" block. Quota is the inbound
// quota this node grants on links of this block, e.g., "64 KiB".
type linkConf struct {
	Name     string
	Protocol string
	Endpoint string
	Quota    string
}

// parseQuota parses an optional quota string, defaulting to flow.DefaultRate.
func parseQuota(quota string) (flow.Rate, error) {
	if quota == "" {
		return flow.DefaultRate, nil
	}
	return flow.ParseRate(quota)
}

func parseListenPort(endpoint string) (port int, err error) {
	var portStr string
	_, portStr, err = net.SplitHostPort(endpoint)
	if err != nil {
		return
	}
	port, err = strconv.Atoi(portStr)
	return
}

// parseListen inspects a "listen" block and returns a ConnectionProvider
// next to the Announcement to be multicasted for it.
func parseListen(conv linkConf, nodeName string) (peering.ConnectionProvider, discovery.Announcement, error) {
	quota, err := parseQuota(conv.Quota)
	if err != nil {
		return nil, discovery.Announcement{}, err
	}

	portInt, err := parseListenPort(conv.Endpoint)
	if err != nil {
		return nil, discovery.Announcement{}, err
	}

	announcement := discovery.Announcement{
		NodeName: nodeName,
		Port:     uint(portInt),
		Quota:    quota,
	}

	switch conv.Protocol {
	case "tcp":
		announcement.Protocol = discovery.ProtocolTCP
		return peering.NewTCPListener(conv.Endpoint, nodeName, quota), announcement, nil

	case "quic":
		announcement.Protocol = discovery.ProtocolQUIC
		return peering.NewQUICListener(conv.Endpoint, nodeName, quota), announcement, nil

	default:
		return nil, discovery.Announcement{}, fmt.Errorf("unknown listen.protocol %q", conv.Protocol)
	}
}

// parsePeer inspects a "peer" block and returns a permanent dialer Link.
func parsePeer(conv linkConf, nodeName string) (*peering.Link, error) {
	quota, err := parseQuota(conv.Quota)
	if err != nil {
		return nil, err
	}

	switch conv.Protocol {
	case "tcp":
		return peering.NewTCPLink(conv.Endpoint, nodeName, quota, true), nil

	case "quic":
		return peering.NewQUICLink(conv.Endpoint, nodeName, quota, true), nil

	default:
		return nil, fmt.Errorf("unknown peer.protocol %q", conv.Protocol)
	}
}

// parseNode creates the Node based on the given TOML configuration.
func parseNode(filename string) (n *node.Node, profiling bool, err error) {
	var conf tomlConfig
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	// Logging
	if conf.Logging.Level != "" {
		if lvl, lvlErr := log.ParseLevel(conf.Logging.Level); lvlErr != nil {
			log.WithFields(log.Fields{
				"level":    conf.Logging.Level,
				"error":    lvlErr,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.Logging.ReportCaller)

	switch conf.Logging.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}

	profiling = conf.Node.Profiling

	// Node
	if conf.Node.Name == "" {
		err = fmt.Errorf("node.name is empty")
		return
	}
	if conf.Node.Store == "" {
		err = fmt.Errorf("node.store is empty")
		return
	}

	n, err = node.NewNode(conf.Node.Name, conf.Node.Store)
	if err != nil {
		return
	}

	// Listen
	var announcements []discovery.Announcement
	for _, conv := range conf.Listen {
		provider, announcement, lErr := parseListen(conv, conf.Node.Name)
		if lErr != nil {
			err = lErr
			return
		}

		announcements = append(announcements, announcement)
		n.Register(provider)
	}

	// Peer
	for _, conv := range conf.Peer {
		link, pErr := parsePeer(conv, conf.Node.Name)
		if pErr != nil {
			log.WithFields(log.Fields{
				"peer":  conv.Endpoint,
				"error": pErr,
			}).Warn("Failed to configure a peer")
			continue
		}

		n.Register(link)
	}

	// Discovery
	if conf.Discovery.IPv4 || conf.Discovery.IPv6 {
		if conf.Discovery.Interval == 0 {
			conf.Discovery.Interval = 10
		}

		discoveryQuota, qErr := parseQuota(conf.Discovery.Quota)
		if qErr != nil {
			err = qErr
			return
		}

		dm, dErr := discovery.NewManager(
			conf.Node.Name, n.Register, discoveryQuota,
			announcements, time.Duration(conf.Discovery.Interval)*time.Second,
			conf.Discovery.IPv4, conf.Discovery.IPv6)
		if dErr != nil {
			err = dErr
			return
		}

		n.AttachDiscovery(dm)
	}

	// API
	if conf.API.Listen != "" {
		n.AttachAPI(conf.API.Listen)
	}

	return
}

// watchConfiguration re-applies the peers' quotas after the configuration
// file changed. Other blocks require a restart.
func watchConfiguration(filename string, n *node.Node) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filename); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}

				applyQuotaChanges(filename, n)

			case watchErr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(watchErr).Warn("Watching the configuration file errored")
			}
		}
	}()

	return watcher, nil
}

// applyQuotaChanges re-parses the configuration and applies each named
// peer's quota.
func applyQuotaChanges(filename string, n *node.Node) {
	var conf tomlConfig
	if _, err := toml.DecodeFile(filename, &conf); err != nil {
		log.WithError(err).Warn("Re-parsing the changed configuration failed")
		return
	}

	for _, conv := range conf.Peer {
		if conv.Name == "" || conv.Quota == "" {
			continue
		}

		quota, err := flow.ParseRate(conv.Quota)
		if err != nil {
			log.WithError(err).WithField("peer", conv.Name).Warn("Changed quota is unparsable")
			continue
		}

		if err := n.SetPeerQuota(conv.Name, quota); err != nil {
			log.WithError(err).WithField("peer", conv.Name).Warn("Applying changed quota failed")
			continue
		}

		log.WithFields(log.Fields{
			"peer":  conv.Name,
			"quota": quota,
		}).Info("Configuration change applied a quota")
	}
}
