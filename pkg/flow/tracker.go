// SPDX-FileCopyrightText: 2025, 2026 Jonas Reinhardt
// SPDX-FileCopyrightText: 2026 Mara Vogel
//
// SPDX-License-Identifier: GPL-3.0-or-later

package flow

import (
	"errors"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/benbjohnson/clock"
)

// carryFloor is the least amount of carried bandwidth every Tracker grants,
// one maximum wire message worth of bytes. Without this floor a link with a
// tiny quota could never bank enough credit to send a full-sized message.
const carryFloor uint64 = 65536

// ErrOverflow is returned by Tracker.Consume if the requested size would wrap
// the internal consumption counter. Such a Consume has no effect.
var ErrOverflow = errors.New("flow: consumption counter overflow")

// Tracker accounts consumed bytes against a configured Rate. It decides
// whether consuming additional bytes right now exceeds the quota, how long a
// caller must wait until a consumption is covered, and how many bytes are
// available without waiting. Unused bandwidth is banked as burst credit, up to
// a bounded carry window.
//
// An optional update callback fires whenever the quota changes and an optional
// excess callback fires when the banked credit is about to hit the carry
// window's cap, asking the client to spend bandwidth before it is wasted.
// At most one excess notification is scheduled at any time.
//
// All methods are safe for concurrent use. The callbacks are invoked without
// holding the Tracker's lock and may call back into the Tracker.
type Tracker struct {
	mutex sync.Mutex
	clk   clock.Clock

	rate            Rate
	maxCarrySeconds uint32

	// consumption relative to lastUpdate; positive is a backlog to drain,
	// negative is banked credit.
	consumption int64
	lastUpdate  time.Time

	updateCallback func()
	excessCallback func()

	// excessTimer is the at most one scheduled excess notification. A fired
	// timer only runs its callback if its generation still matches excessGen,
	// which makes cancellation synchronous.
	excessTimer *clock.Timer
	excessGen   uint64
}

// NewTracker creates a Tracker for the given Rate and carry window. The
// updateCallback may be nil; if given, it fires on every UpdateQuota.
func NewTracker(updateCallback func(), rate Rate, maxCarrySeconds uint32) *Tracker {
	return newTracker(clock.New(), updateCallback, rate, maxCarrySeconds, nil)
}

// NewNotifyingTracker creates a Tracker which additionally fires the
// excessCallback when banked bandwidth is about to exceed the carry window.
// An initial excess check is scheduled right away.
func NewNotifyingTracker(updateCallback func(), rate Rate, maxCarrySeconds uint32, excessCallback func()) *Tracker {
	return newTracker(clock.New(), updateCallback, rate, maxCarrySeconds, excessCallback)
}

func newTracker(clk clock.Clock, updateCallback func(), rate Rate, maxCarrySeconds uint32, excessCallback func()) *Tracker {
	tracker := &Tracker{
		clk:             clk,
		rate:            rate,
		maxCarrySeconds: maxCarrySeconds,
		lastUpdate:      clk.Now(),
		updateCallback:  updateCallback,
		excessCallback:  excessCallback,
	}

	if excessCallback != nil {
		tracker.mutex.Lock()
		excess := tracker.prepareExcess()
		tracker.mutex.Unlock()

		excess()
	}

	return tracker
}

// maxCarry is the most bytes this Tracker may bank, at least carryFloor.
// Must be called with the mutex held.
func (tracker *Tracker) maxCarry() uint64 {
	carry := uint64(tracker.maxCarrySeconds) * uint64(tracker.rate)
	if carry < carryFloor {
		carry = carryFloor
	}
	return carry
}

// update applies the time decay: the bytes the Rate yielded since lastUpdate,
// rounded half-up, are credited against the consumption counter and banked
// credit is clamped to the carry window. Must be called with the mutex held.
func (tracker *Tracker) update() {
	now := tracker.clk.Now()
	deltaUs := now.Sub(tracker.lastUpdate).Microseconds()
	if deltaUs < 0 {
		deltaUs = 0
	}

	deltaAvailable := (uint64(deltaUs)*uint64(tracker.rate) + 500000) / 1000000
	if deltaAvailable > math.MaxInt64 {
		deltaAvailable = math.MaxInt64
	}

	if tracker.consumption < math.MinInt64+int64(deltaAvailable) {
		tracker.consumption = math.MinInt64
	} else {
		tracker.consumption -= int64(deltaAvailable)
	}
	tracker.lastUpdate = now

	if carry := tracker.maxCarry(); tracker.consumption < 0 && uint64(-tracker.consumption) > carry {
		tracker.consumption = -int64(carry)
	}
}

// Consume records size sent or received bytes. A negative size retroactively
// returns previously counted bytes. The boolean result reports whether the
// link remains above its quota afterwards, i.e., a backlog still exists even
// after the elapsed time was credited.
func (tracker *Tracker) Consume(size int64) (overLimit bool, err error) {
	tracker.mutex.Lock()

	if size > 0 {
		next := tracker.consumption + size
		if next < tracker.consumption {
			tracker.mutex.Unlock()
			return false, ErrOverflow
		}

		tracker.consumption = next
		tracker.update()
		overLimit = tracker.consumption > 0
	} else {
		tracker.consumption += size
	}

	excess := tracker.prepareExcess()
	tracker.mutex.Unlock()

	excess()
	return
}

// Delay reports how long the caller must wait until consuming size additional
// bytes is covered by the quota. A zero result means the consumption is free
// right now; Forever means it never will be.
func (tracker *Tracker) Delay(size uint64) time.Duration {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	tracker.update()

	if tracker.rate == 0 {
		return Forever
	}

	if size > math.MaxInt64 || tracker.consumption > math.MaxInt64-int64(size) {
		return Forever
	}
	needed := tracker.consumption + int64(size)
	if needed <= 0 {
		return 0
	}

	return tracker.rate.DelayFor(uint64(needed))
}

// Available reports how many bytes may be consumed right now without delay.
// A negative result is a deficit: the link is currently over budget.
func (tracker *Tracker) Available() int64 {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	tracker.update()

	available := tracker.rate.AvailableFor(tracker.clk.Now().Sub(tracker.lastUpdate))
	if available > math.MaxInt64 {
		available = math.MaxInt64
	}

	return int64(available) - tracker.consumption
}

// Rate returns the currently configured Rate.
func (tracker *Tracker) Rate() Rate {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	return tracker.rate
}

// UpdateQuota changes the Rate. Time elapsed so far is credited under the old
// Rate first. Lowering the quota also shrinks the carry window, so banked
// credit is re-clamped afterwards. A registered update callback fires once.
func (tracker *Tracker) UpdateQuota(rate Rate) {
	tracker.mutex.Lock()

	tracker.update()
	oldRate := tracker.rate
	tracker.rate = rate

	if rate < oldRate {
		tracker.update()
	}

	log.WithFields(log.Fields{
		"old": oldRate,
		"new": rate,
	}).Debug("Tracker quota updated")

	update := tracker.updateCallback
	excess := tracker.prepareExcess()
	tracker.mutex.Unlock()

	if update != nil {
		update()
	}
	excess()
}

// StopNotifications cancels a pending excess notification and clears both
// callbacks. After it returns, neither callback will fire again.
func (tracker *Tracker) StopNotifications() {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	tracker.cancelExcess()
	tracker.updateCallback = nil
	tracker.excessCallback = nil
}

// cancelExcess invalidates a pending excess notification. Must be called with
// the mutex held; the generation bump stops an already fired timer whose
// callback has not yet acquired the mutex.
func (tracker *Tracker) cancelExcess() {
	tracker.excessGen++
	if tracker.excessTimer != nil {
		tracker.excessTimer.Stop()
		tracker.excessTimer = nil
	}
}

// prepareExcess re-schedules the excess notification under the mutex and
// returns a function to run after unlocking, which fires the callback
// directly if the carry window is already exceeded. Callers must invoke the
// returned function; it is a no-op when nothing is due.
func (tracker *Tracker) prepareExcess() func() {
	nop := func() {}

	if tracker.excessCallback == nil {
		return nop
	}

	tracker.cancelExcess()

	// Peek at the decayed consumption without committing it.
	deltaUs := tracker.clk.Now().Sub(tracker.lastUpdate).Microseconds()
	if deltaUs < 0 {
		deltaUs = 0
	}
	deltaAvailable := (uint64(deltaUs)*uint64(tracker.rate) + 500000) / 1000000
	if deltaAvailable > math.MaxInt64 {
		deltaAvailable = math.MaxInt64
	}

	current := tracker.consumption
	if current < math.MinInt64+int64(deltaAvailable) {
		current = math.MinInt64
	} else {
		current -= int64(deltaAvailable)
	}

	carry := tracker.maxCarry()
	if carry > math.MaxInt64 {
		carry = math.MaxInt64
	}

	// left is the remaining headroom of the carry window; current is usually
	// negative, i.e., banked credit.
	left := int64(carry)
	if current > math.MaxInt64-left {
		left = math.MaxInt64
	} else {
		left += current
	}

	if left < 0 {
		// Cap already exceeded, notify right away.
		callback := tracker.excessCallback
		return callback
	}

	if tracker.rate == 0 {
		// A paused link never accumulates credit; nothing to schedule.
		return nop
	}

	delay := time.Duration(uint64(left)/uint64(tracker.rate)) * time.Second

	gen := tracker.excessGen
	tracker.excessTimer = tracker.clk.AfterFunc(delay, func() {
		tracker.excessFired(gen)
	})

	return nop
}

// excessFired runs from the scheduled timer and fires the excess callback,
// unless the notification was cancelled or re-scheduled in the meantime.
func (tracker *Tracker) excessFired(gen uint64) {
	tracker.mutex.Lock()

	if gen != tracker.excessGen || tracker.excessCallback == nil {
		tracker.mutex.Unlock()
		return
	}

	tracker.excessTimer = nil
	callback := tracker.excessCallback
	tracker.mutex.Unlock()

	callback()
}
