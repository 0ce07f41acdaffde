// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"reflect"
	"testing"

	"github.com/wireflow/wireflow-go/pkg/flow"
)

func TestAnnouncementCbor(t *testing.T) {
	var tests = []Announcement{
		{
			Protocol: ProtocolTCP,
			NodeName: "foobar",
			Port:     8000,
			Quota:    flow.DefaultRate,
		},
		{
			Protocol: ProtocolQUIC,
			NodeName: "foobar",
			Port:     8000,
			Quota:    flow.RateUnlimited,
		},
		{
			Protocol: ProtocolTCP,
			NodeName: "relay-23",
			Port:     12345,
			Quota:    1 << 20,
		},
		{
			Protocol: ProtocolQUIC,
			NodeName: "relay-23",
			Port:     12345,
			Quota:    0,
		},
	}

	for _, annIn := range tests {
		buff, err := MarshalAnnouncements([]Announcement{annIn})
		if err != nil {
			t.Fatalf("Encoding failed: %v", err)
		}

		annsOut, err := UnmarshalAnnouncements(buff)
		if err != nil {
			t.Fatalf("Decoding failed: %v", err)
		}

		if l := len(annsOut); l != 1 {
			t.Fatalf("Length of decoded Announcements is %d != 1", l)
		}

		if !reflect.DeepEqual(annIn, annsOut[0]) {
			t.Fatalf("Decoded Announcement differs: %v became %v", annIn, annsOut[0])
		}
	}
}

func TestAnnouncementCborMultiple(t *testing.T) {
	anns := []Announcement{
		{Protocol: ProtocolTCP, NodeName: "alpha", Port: 4556, Quota: 65536},
		{Protocol: ProtocolQUIC, NodeName: "alpha", Port: 4557, Quota: 65536},
	}

	buff, err := MarshalAnnouncements(anns)
	if err != nil {
		t.Fatalf("Encoding failed: %v", err)
	}

	annsOut, err := UnmarshalAnnouncements(buff)
	if err != nil {
		t.Fatalf("Decoding failed: %v", err)
	}

	if !reflect.DeepEqual(anns, annsOut) {
		t.Fatalf("Decoded Announcements differ: %v became %v", anns, annsOut)
	}
}

func TestAnnouncementCborInvalidProtocol(t *testing.T) {
	ann := Announcement{Protocol: Protocol(42), NodeName: "x", Port: 1, Quota: 1}

	buff, err := MarshalAnnouncements([]Announcement{ann})
	if err != nil {
		t.Fatalf("Encoding failed: %v", err)
	}

	if _, err := UnmarshalAnnouncements(buff); err == nil {
		t.Fatal("Decoding an unknown Protocol did not fail")
	}
}
