// SPDX-FileCopyrightText: 2026 Jonas Reinhardt
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package store persists peer records together with their traffic counters.
package store

import (
	"os"
	"path"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/timshannon/badgerhold"

	"github.com/wireflow/wireflow-go/pkg/flow"
)

const dirBadger string = "db"

// PeerRecord is the persisted state of one known peer.
type PeerRecord struct {
	Name string `badgerhold:"key"`

	Address string
	Quota   flow.Rate

	FirstSeen time.Time
	LastSeen  time.Time

	BytesIn     uint64
	BytesOut    uint64
	MessagesIn  uint64
	MessagesOut uint64
}

// Store holds PeerRecords in a badgerhold database.
type Store struct {
	bh *badgerhold.Store

	badgerDir string
}

// NewStore creates a new Store or opens an existing Store from the given path.
func NewStore(dir string) (s *Store, err error) {
	badgerDir := path.Join(dir, dirBadger)

	opts := badgerhold.DefaultOptions
	opts.Dir = badgerDir
	opts.ValueDir = badgerDir
	opts.Logger = log.StandardLogger()
	opts.Options.ValueLogFileSize = 1<<28 - 1

	if dirErr := os.MkdirAll(badgerDir, 0700); dirErr != nil {
		err = dirErr
		return
	}

	if bh, bhErr := badgerhold.Open(opts); bhErr != nil {
		err = bhErr
	} else {
		s = &Store{
			bh: bh,

			badgerDir: badgerDir,
		}
	}
	return
}

// Close the Store. It must not be used afterwards.
func (s *Store) Close() error {
	return s.bh.Close()
}

// Touch inserts or refreshes the PeerRecord for a peer. A new record starts
// with the given quota; an existing record keeps its persisted quota and only
// refreshes address and LastSeen.
func (s *Store) Touch(name, address string, quota flow.Rate) (PeerRecord, error) {
	now := time.Now()

	record, err := s.QueryName(name)
	if err != nil {
		log.WithFields(log.Fields{
			"peer":    name,
			"address": address,
		}).Info("Peer is unknown, inserting PeerRecord")

		record = PeerRecord{
			Name:      name,
			Address:   address,
			Quota:     quota,
			FirstSeen: now,
			LastSeen:  now,
		}
		return record, s.bh.Insert(record.Name, record)
	}

	record.Address = address
	record.LastSeen = now
	return record, s.bh.Update(record.Name, record)
}

// QueryName returns the PeerRecord for the given peer name.
func (s *Store) QueryName(name string) (record PeerRecord, err error) {
	err = s.bh.Get(name, &record)
	return
}

// QueryAll returns all PeerRecords.
func (s *Store) QueryAll() (records []PeerRecord, err error) {
	err = s.bh.Find(&records, nil)
	return
}

// AddTraffic applies traffic counter deltas to a peer's PeerRecord and
// refreshes its LastSeen timestamp.
func (s *Store) AddTraffic(name string, bytesIn, bytesOut, messagesIn, messagesOut uint64) error {
	record, err := s.QueryName(name)
	if err != nil {
		return err
	}

	record.BytesIn += bytesIn
	record.BytesOut += bytesOut
	record.MessagesIn += messagesIn
	record.MessagesOut += messagesOut
	record.LastSeen = time.Now()

	return s.bh.Update(record.Name, record)
}

// SetQuota persists a peer's inbound quota.
func (s *Store) SetQuota(name string, quota flow.Rate) error {
	record, err := s.QueryName(name)
	if err != nil {
		return err
	}

	record.Quota = quota

	return s.bh.Update(record.Name, record)
}
