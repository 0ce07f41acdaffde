// SPDX-FileCopyrightText: 2025 Jonas Reinhardt
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package flow implements per-link bandwidth accounting. Its central type is
// the Tracker, a token-bucket style rate limiter with a bounded carry-over of
// unused bandwidth, deadline computation for pending transmissions, and an
// optional notification when banked bandwidth is about to be wasted.
package flow

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Rate is a bandwidth limit in bytes per second. The zero Rate is a valid
// "paused" state in which nothing ever becomes available.
type Rate uint32

const (
	// RateUnlimited is the highest expressible Rate, used for quotas which
	// should not limit anything in practice.
	RateUnlimited Rate = math.MaxUint32

	// DefaultRate is the inbound/outbound quota assumed when a configuration
	// does not specify one.
	DefaultRate Rate = 65536

	// DefaultMaxCarrySeconds bounds how many seconds worth of unused
	// bandwidth a Tracker may bank by default.
	DefaultMaxCarrySeconds uint32 = 5

	// Forever is the delay reported for transmissions which will never be
	// covered by the quota, e.g., everything on a paused link.
	Forever time.Duration = math.MaxInt64
)

// AvailableFor calculates how many bytes this Rate yields over the given
// duration, truncated to whole bytes.
func (rate Rate) AvailableFor(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d.Microseconds()) * uint64(rate) / 1000000
}

// DelayFor calculates how long one must wait until this Rate has yielded the
// given amount of bytes. A zero Rate results in Forever.
func (rate Rate) DelayFor(size uint64) time.Duration {
	if rate == 0 {
		return Forever
	}

	if size > math.MaxUint64/1000000 {
		return Forever
	}
	us := size * 1000000 / uint64(rate)
	if us > math.MaxInt64/1000 {
		return Forever
	}
	return time.Duration(us) * time.Microsecond
}

// Min returns the smaller of two Rates.
func Min(a, b Rate) Rate {
	if a < b {
		return a
	}
	return b
}

// Max returns the greater of two Rates.
func Max(a, b Rate) Rate {
	if a > b {
		return a
	}
	return b
}

// Sum adds two Rates, saturating at RateUnlimited.
func Sum(a, b Rate) Rate {
	if s := uint64(a) + uint64(b); s < uint64(RateUnlimited) {
		return Rate(s)
	}
	return RateUnlimited
}

// rateSuffixes maps the known size suffixes to their multiplier. Lower-case
// kilo/mega/giga are decimal, the -ibi forms are binary.
var rateSuffixes = map[string]uint64{
	"b":   1,
	"k":   1000,
	"kb":  1000,
	"kib": 1024,
	"m":   1000 * 1000,
	"mb":  1000 * 1000,
	"mib": 1024 * 1024,
	"g":   1000 * 1000 * 1000,
	"gb":  1000 * 1000 * 1000,
	"gib": 1024 * 1024 * 1024,
}

// ParseRate reads a quota configuration value: "unlimited", a plain byte
// count, or a number with a size suffix like "64 KiB", "1M" or "500k".
func ParseRate(s string) (Rate, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	if norm == "" {
		return 0, fmt.Errorf("empty quota value")
	}
	if norm == "unlimited" {
		return RateUnlimited, nil
	}

	digits := norm
	multiplier := uint64(1)
	if pos := strings.IndexFunc(norm, func(r rune) bool { return r < '0' || r > '9' }); pos >= 0 {
		suffix := strings.TrimSpace(norm[pos:])
		m, known := rateSuffixes[suffix]
		if !known {
			return 0, fmt.Errorf("unknown size suffix %q in quota %q", suffix, s)
		}

		digits = strings.TrimSpace(norm[:pos])
		multiplier = m
	}

	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing quota %q failed: %w", s, err)
	}

	if n > uint64(RateUnlimited)/multiplier {
		return RateUnlimited, nil
	}
	return Rate(n * multiplier), nil
}

// String renders a Rate the way ParseRate reads it, preferring exact binary
// suffixes over raw byte counts.
func (rate Rate) String() string {
	if rate == RateUnlimited {
		return "unlimited"
	}

	for _, step := range []struct {
		factor Rate
		suffix string
	}{
		{1024 * 1024 * 1024, "GiB"},
		{1024 * 1024, "MiB"},
		{1024, "KiB"},
	} {
		if rate >= step.factor && rate%step.factor == 0 {
			return fmt.Sprintf("%d %s", rate/step.factor, step.suffix)
		}
	}

	return strconv.FormatUint(uint64(rate), 10)
}
