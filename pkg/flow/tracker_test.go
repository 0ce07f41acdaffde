// SPDX-FileCopyrightText: 2026 Jonas Reinhardt
//
// SPDX-License-Identifier: GPL-3.0-or-later

package flow

import (
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestTrackerConservation(t *testing.T) {
	mock := clock.NewMock()
	tracker := newTracker(mock, nil, 1000, 2, nil)

	sizes := []int64{100, 250, -50, 400, -200}
	var net int64
	for _, size := range sizes {
		if _, err := tracker.Consume(size); err != nil {
			t.Fatalf("Consume(%d) errored: %v", size, err)
		}
		net += size
	}

	if available := tracker.Available(); available != -net {
		t.Fatalf("Available() was %d, expected %d", available, -net)
	}
}

func TestTrackerZeroRate(t *testing.T) {
	mock := clock.NewMock()
	tracker := newTracker(mock, nil, 0, 5, nil)

	for _, size := range []uint64{0, 1, 1000, math.MaxUint32} {
		if delay := tracker.Delay(size); delay != Forever {
			t.Fatalf("Delay(%d) on a paused Tracker was %v, expected Forever", size, delay)
		}
	}

	if overLimit, err := tracker.Consume(512); err != nil {
		t.Fatalf("Consume errored: %v", err)
	} else if !overLimit {
		t.Fatal("Consume on a paused Tracker reported to be within the quota")
	}
}

func TestTrackerDelayScenario(t *testing.T) {
	mock := clock.NewMock()
	tracker := newTracker(mock, nil, 1000, 2, nil)

	// One second of idle time banks 1000 bytes of credit.
	mock.Add(time.Second)

	if overLimit, err := tracker.Consume(1500); err != nil {
		t.Fatalf("Consume errored: %v", err)
	} else if !overLimit {
		t.Fatal("Consume(1500) against 1000 banked bytes should leave a backlog")
	}

	if delay := tracker.Delay(0); delay != 500*time.Millisecond {
		t.Fatalf("Delay(0) was %v, expected 500ms", delay)
	}

	mock.Add(500 * time.Millisecond)

	if delay := tracker.Delay(0); delay != 0 {
		t.Fatalf("Delay(0) after the backlog drained was %v, expected 0", delay)
	}
}

func TestTrackerMonotonicDecay(t *testing.T) {
	mock := clock.NewMock()
	tracker := newTracker(mock, nil, 1000, 2, nil)

	if _, err := tracker.Consume(10000); err != nil {
		t.Fatal(err)
	}

	previous := tracker.Delay(0)
	for i := 0; i < 40; i++ {
		mock.Add(250 * time.Millisecond)

		delay := tracker.Delay(0)
		if delay > previous {
			t.Fatalf("delay grew from %v to %v without consumption", previous, delay)
		}
		previous = delay
	}

	if previous != 0 {
		t.Fatalf("delay after ten idle seconds was %v, expected 0", previous)
	}
}

func TestTrackerCarryCap(t *testing.T) {
	// 100000 B/s * 2 s exceeds the carry floor, so the cap is 200000 bytes.
	mock := clock.NewMock()
	tracker := newTracker(mock, nil, 100000, 2, nil)

	for i := 0; i < 10; i++ {
		if _, err := tracker.Consume(-100000); err != nil {
			t.Fatal(err)
		}
	}
	mock.Add(time.Hour)

	if available := tracker.Available(); available != 200000 {
		t.Fatalf("Available() was %d, expected the 200000 byte carry cap", available)
	}
}

func TestTrackerCarryFloor(t *testing.T) {
	// 10 B/s * 2 s is far below one maximum message; the floor applies.
	mock := clock.NewMock()
	tracker := newTracker(mock, nil, 10, 2, nil)

	mock.Add(24 * time.Hour)

	if available := tracker.Available(); available != int64(carryFloor) {
		t.Fatalf("Available() was %d, expected the %d byte carry floor", available, carryFloor)
	}
}

func TestTrackerRoundHalfUp(t *testing.T) {
	tests := []struct {
		delta     time.Duration
		available int64
	}{
		{499999 * time.Microsecond, 0},
		{500 * time.Millisecond, 1},
		{1500 * time.Millisecond, 2},
	}

	for _, test := range tests {
		mock := clock.NewMock()
		tracker := newTracker(mock, nil, 1, 1, nil)

		mock.Add(test.delta)
		if available := tracker.Available(); available != test.available {
			t.Fatalf("1 B/s over %v made %d bytes available, expected %d",
				test.delta, available, test.available)
		}
	}
}

func TestTrackerConsumeOverflow(t *testing.T) {
	mock := clock.NewMock()
	tracker := newTracker(mock, nil, 1000, 2, nil)

	if _, err := tracker.Consume(math.MaxInt64); err != nil {
		t.Fatal(err)
	}
	if _, err := tracker.Consume(math.MaxInt64); err != ErrOverflow {
		t.Fatalf("second huge Consume returned %v, expected ErrOverflow", err)
	}
}

func TestTrackerUpdateQuota(t *testing.T) {
	mock := clock.NewMock()

	var updates int32
	tracker := newTracker(mock, func() { atomic.AddInt32(&updates, 1) }, 1000, 2, nil)

	if _, err := tracker.Consume(2000); err != nil {
		t.Fatal(err)
	}

	tracker.UpdateQuota(4000)
	if n := atomic.LoadInt32(&updates); n != 1 {
		t.Fatalf("update callback fired %d times, expected 1", n)
	}
	if rate := tracker.Rate(); rate != 4000 {
		t.Fatalf("Rate() was %v after UpdateQuota", rate)
	}

	// 2000 bytes backlog against 4000 B/s drain in half a second.
	if delay := tracker.Delay(0); delay != 500*time.Millisecond {
		t.Fatalf("Delay(0) under the new quota was %v, expected 500ms", delay)
	}
}

func TestTrackerExcessImmediate(t *testing.T) {
	mock := clock.NewMock()

	var excesses int32
	tracker := newTracker(mock, nil, 1000, 2, func() { atomic.AddInt32(&excesses, 1) })

	// Returning far more credit than the carry window holds must trigger the
	// notification without any clock advance.
	if _, err := tracker.Consume(-200000); err != nil {
		t.Fatal(err)
	}

	if n := atomic.LoadInt32(&excesses); n != 1 {
		t.Fatalf("excess callback fired %d times, expected 1", n)
	}
}

func TestTrackerExcessScheduled(t *testing.T) {
	mock := clock.NewMock()

	var excesses int32
	tracker := newTracker(mock, nil, 1000, 2, func() { atomic.AddInt32(&excesses, 1) })
	defer tracker.StopNotifications()

	// The carry floor grants 65536 bytes of headroom; at 1000 B/s the
	// notification is due after 65 whole seconds.
	mock.Add(64 * time.Second)
	if n := atomic.LoadInt32(&excesses); n != 0 {
		t.Fatalf("excess callback fired %d times too early", n)
	}

	mock.Add(2 * time.Second)
	if n := atomic.LoadInt32(&excesses); n != 1 {
		t.Fatalf("excess callback fired %d times, expected 1", n)
	}
}

func TestTrackerStopNotifications(t *testing.T) {
	mock := clock.NewMock()

	var excesses int32
	tracker := newTracker(mock, nil, 1000, 2, func() { atomic.AddInt32(&excesses, 1) })

	tracker.StopNotifications()

	mock.Add(time.Hour)
	if n := atomic.LoadInt32(&excesses); n != 0 {
		t.Fatalf("excess callback fired %d times after StopNotifications", n)
	}
}
