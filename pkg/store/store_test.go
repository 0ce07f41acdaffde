// SPDX-FileCopyrightText: 2026 Jonas Reinhardt
//
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/wireflow/wireflow-go/pkg/flow"
)

func setupStoreDir(t *testing.T) string {
	filePath, err := ioutil.TempFile("", "store")

	if err != nil {
		t.Fatal(err)
	} else {
		os.Remove(filePath.Name())
	}

	return filePath.Name()
}

func TestStore(t *testing.T) {
	dir := setupStoreDir(t)
	defer os.RemoveAll(dir)

	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	record, err := store.Touch("alpha", "127.0.0.1:35037", flow.DefaultRate)
	if err != nil {
		t.Fatal(err)
	}
	if record.FirstSeen.IsZero() || record.LastSeen.IsZero() {
		t.Fatal("timestamps of a fresh PeerRecord are zero")
	}

	if record, err := store.QueryName("alpha"); err != nil {
		t.Fatal(err)
	} else if record.Quota != flow.DefaultRate {
		t.Fatalf("quota is %v", record.Quota)
	}

	if _, err := store.QueryName("bravo"); err == nil {
		t.Fatal("querying an unknown peer did not fail")
	}

	if err := store.AddTraffic("alpha", 100, 200, 1, 2); err != nil {
		t.Fatal(err)
	}
	if err := store.AddTraffic("alpha", 50, 0, 1, 0); err != nil {
		t.Fatal(err)
	}

	if record, err := store.QueryName("alpha"); err != nil {
		t.Fatal(err)
	} else {
		if record.BytesIn != 150 || record.BytesOut != 200 {
			t.Fatalf("byte counters are %d/%d", record.BytesIn, record.BytesOut)
		}
		if record.MessagesIn != 2 || record.MessagesOut != 2 {
			t.Fatalf("message counters are %d/%d", record.MessagesIn, record.MessagesOut)
		}
	}

	if err := store.SetQuota("alpha", 1<<20); err != nil {
		t.Fatal(err)
	}

	// A later Touch must not reset the persisted quota.
	if _, err := store.Touch("alpha", "127.0.0.1:35038", flow.DefaultRate); err != nil {
		t.Fatal(err)
	}

	if record, err := store.QueryName("alpha"); err != nil {
		t.Fatal(err)
	} else {
		if record.Quota != 1<<20 {
			t.Fatalf("quota is %v after Touch", record.Quota)
		}
		if record.Address != "127.0.0.1:35038" {
			t.Fatalf("address is %s after Touch", record.Address)
		}
	}

	if _, err := store.Touch("bravo", "10.0.0.2:35037", 4096); err != nil {
		t.Fatal(err)
	}

	if records, err := store.QueryAll(); err != nil {
		t.Fatal(err)
	} else if len(records) != 2 {
		t.Fatalf("store holds %d records, expected 2", len(records))
	}

	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
}
