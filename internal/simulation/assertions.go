package simulation

import (
	"math"
	"testing"

	"github.com/nvandessel/episim/internal/results"
)

// MustChannel returns a full channel or fails the test.
func MustChannel(t testing.TB, res *results.Results, channel string) []float64 {
	t.Helper()
	values, err := res.Channel(channel)
	if err != nil {
		t.Fatalf("MustChannel: %v", err)
	}
	return values
}

// DayZero returns the day-zero value of a channel, n_susceptible when
// channel is empty.
func DayZero(t testing.TB, res *results.Results, channel string) float64 {
	t.Helper()
	if channel == "" {
		channel = string(results.NSusceptible)
	}
	return MustChannel(t, res, channel)[0]
}

// Final returns the last value of a channel.
func Final(t testing.TB, res *results.Results, channel string) float64 {
	t.Helper()
	values := MustChannel(t, res, channel)
	return values[len(values)-1]
}

// AssertDayZero asserts the day-zero value of a channel.
func AssertDayZero(t testing.TB, res *results.Results, channel string, want float64) {
	t.Helper()
	if got := DayZero(t, res, channel); got != want {
		t.Errorf("AssertDayZero: %s[0] = %v, want %v", channel, got, want)
	}
}

// AssertFinal asserts the last value of a channel.
func AssertFinal(t testing.TB, res *results.Results, channel string, want float64) {
	t.Helper()
	if got := Final(t, res, channel); got != want {
		t.Errorf("AssertFinal: %s[-1] = %v, want %v", channel, got, want)
	}
}

// AssertNonDecreasing asserts channel[d] >= channel[d-1] for every d in
// [from, to).
func AssertNonDecreasing(t testing.TB, res *results.Results, channel string, from, to int) {
	t.Helper()
	values := MustChannel(t, res, channel)
	if to > len(values) {
		t.Fatalf("AssertNonDecreasing: %s has %d days, need %d", channel, len(values), to)
	}
	for d := max(from, 1); d < to; d++ {
		if values[d] < values[d-1] {
			t.Errorf("AssertNonDecreasing: %s fell on day %d: %v after %v", channel, d, values[d], values[d-1])
		}
	}
}

// AssertSumAtLeast asserts the channel total over all days is at least min.
func AssertSumAtLeast(t testing.TB, res *results.Results, channel string, min float64) {
	t.Helper()
	sum, err := res.Sum(channel)
	if err != nil {
		t.Fatalf("AssertSumAtLeast: %v", err)
	}
	if sum < min {
		t.Errorf("AssertSumAtLeast: sum(%s) = %v, want >= %v", channel, sum, min)
	}
}

// AssertWithinRatio asserts got is within a relative tolerance of want.
func AssertWithinRatio(t testing.TB, label string, got, want, tolerance float64) {
	t.Helper()
	if want == 0 {
		if got != 0 {
			t.Errorf("AssertWithinRatio: %s = %v, want 0", label, got)
		}
		return
	}
	if dev := math.Abs(got-want) / math.Abs(want); dev > tolerance {
		t.Errorf("AssertWithinRatio: %s = %v, want %v ± %.0f%% (off by %.1f%%)", label, got, want, tolerance*100, dev*100)
	}
}
