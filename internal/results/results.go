// Package results holds the per-day output channels of a simulation and the
// JSON contract used to persist them.
package results

import (
	"errors"
	"fmt"
)

// ErrUnknownChannel is returned when a channel name is not part of the
// results schema.
var ErrUnknownChannel = errors.New("unknown result channel")

// ErrMalformed is returned when a decoded results document is inconsistent
// with its own n_days.
var ErrMalformed = errors.New("malformed results")

// UnknownChannelError names the channel that was requested.
type UnknownChannelError struct {
	Name string
}

func (e *UnknownChannelError) Error() string {
	return fmt.Sprintf("channel %q not found in results", e.Name)
}

func (e *UnknownChannelError) Unwrap() error { return ErrUnknownChannel }

// Series is one channel. Low and High are only set on reduced ensemble
// results.
type Series struct {
	Values []float64
	Low    []float64
	High   []float64
}

func (s *Series) clone() *Series {
	return &Series{
		Values: cloneFloats(s.Values),
		Low:    cloneFloats(s.Low),
		High:   cloneFloats(s.High),
	}
}

// Results is the output of one run, or of a reduced ensemble.
type Results struct {
	Label      string
	NDays      int
	Parameters map[string]any
	RescaleVec []float64

	channels map[Channel]*Series
}

// New creates results with every channel zero-filled for days 0..nDays.
func New(label string, nDays int) *Results {
	r := &Results{
		Label:    label,
		NDays:    nDays,
		channels: make(map[Channel]*Series, len(registry)),
	}
	for ch := range registry {
		r.channels[ch] = &Series{Values: make([]float64, nDays+1)}
	}
	return r
}

// Len is the number of days recorded, including day 0.
func (r *Results) Len() int {
	return r.NDays + 1
}

// Series returns the named channel for writing. It fails for unknown names.
func (r *Results) Series(name Channel) (*Series, error) {
	s, ok := r.channels[name]
	if !ok {
		return nil, &UnknownChannelError{Name: string(name)}
	}
	return s, nil
}

// MustSeries is Series for channel constants known to exist.
func (r *Results) MustSeries(name Channel) *Series {
	s, err := r.Series(name)
	if err != nil {
		panic(err)
	}
	return s
}

// Channel returns a copy of the named channel's values.
func (r *Results) Channel(name string) ([]float64, error) {
	s, err := r.Series(Channel(name))
	if err != nil {
		return nil, err
	}
	return cloneFloats(s.Values), nil
}

// Bounds returns copies of the low and high bounds of a reduced channel.
// Both are nil for single-run results.
func (r *Results) Bounds(name string) (low, high []float64, err error) {
	s, err := r.Series(Channel(name))
	if err != nil {
		return nil, nil, err
	}
	return cloneFloats(s.Low), cloneFloats(s.High), nil
}

// First returns the day-0 value of a channel.
func (r *Results) First(name string) (float64, error) {
	return r.At(name, 0)
}

// Last returns the final-day value of a channel.
func (r *Results) Last(name string) (float64, error) {
	return r.At(name, r.NDays)
}

// At returns a channel's value on day t.
func (r *Results) At(name string, t int) (float64, error) {
	s, err := r.Series(Channel(name))
	if err != nil {
		return 0, err
	}
	if t < 0 || t >= len(s.Values) {
		return 0, fmt.Errorf("day %d out of range [0, %d] for channel %q", t, len(s.Values)-1, name)
	}
	return s.Values[t], nil
}

// Sum adds a channel over all days.
func (r *Results) Sum(name string) (float64, error) {
	s, err := r.Series(Channel(name))
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, v := range s.Values {
		total += v
	}
	return total, nil
}

// Summary returns the final value of every channel.
func (r *Results) Summary() map[Channel]float64 {
	out := make(map[Channel]float64, len(r.channels))
	for ch, s := range r.channels {
		if n := len(s.Values); n > 0 {
			out[ch] = s.Values[n-1]
		}
	}
	return out
}

// Clone returns a deep copy.
func (r *Results) Clone() *Results {
	out := &Results{
		Label:      r.Label,
		NDays:      r.NDays,
		Parameters: cloneMap(r.Parameters),
		RescaleVec: cloneFloats(r.RescaleVec),
		channels:   make(map[Channel]*Series, len(r.channels)),
	}
	for ch, s := range r.channels {
		out.channels[ch] = s.clone()
	}
	return out
}

func cloneFloats(in []float64) []float64 {
	if in == nil {
		return nil
	}
	out := make([]float64, len(in))
	copy(out, in)
	return out
}

// cloneMap copies the top level only; parameter values are not mutated
// after a run.
func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
