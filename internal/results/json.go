package results

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

type bounds struct {
	Low  []float64 `json:"low"`
	High []float64 `json:"high"`
}

type document struct {
	Label      string               `json:"label"`
	NDays      int                  `json:"n_days"`
	Parameters map[string]any       `json:"parameters"`
	Results    map[string][]float64 `json:"results"`
	Bounds     map[string]bounds    `json:"bounds,omitempty"`
	Summary    map[string]float64   `json:"summary"`
	RescaleVec []float64            `json:"rescale_vec,omitempty"`
}

func (r *Results) toDocument() document {
	doc := document{
		Label:      r.Label,
		NDays:      r.NDays,
		Parameters: r.Parameters,
		Results:    make(map[string][]float64, len(r.channels)),
		Summary:    make(map[string]float64, len(r.channels)),
		RescaleVec: finite(r.RescaleVec),
	}
	if doc.Parameters == nil {
		doc.Parameters = map[string]any{}
	}
	for ch, s := range r.channels {
		doc.Results[string(ch)] = finite(s.Values)
		if s.Low != nil || s.High != nil {
			if doc.Bounds == nil {
				doc.Bounds = make(map[string]bounds)
			}
			doc.Bounds[string(ch)] = bounds{Low: finite(s.Low), High: finite(s.High)}
		}
	}
	for ch, v := range r.Summary() {
		doc.Summary[string(ch)] = finiteValue(v)
	}
	return doc
}

// MarshalJSON encodes the results contract. Keys of every object are sorted.
func (r *Results) MarshalJSON() ([]byte, error) {
	// A struct would fix the top-level key order to field order; a map keeps
	// every level sorted.
	doc := r.toDocument()
	top := map[string]any{
		"label":      doc.Label,
		"n_days":     doc.NDays,
		"parameters": doc.Parameters,
		"results":    doc.Results,
		"summary":    doc.Summary,
	}
	if doc.Bounds != nil {
		top["bounds"] = doc.Bounds
	}
	if doc.RescaleVec != nil {
		top["rescale_vec"] = doc.RescaleVec
	}
	return json.Marshal(top)
}

// UnmarshalJSON decodes a results document. Channels missing from the
// document are left zero-filled; unknown channel names are rejected.
func (r *Results) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.NDays < 0 {
		return fmt.Errorf("%w: n_days %d is negative", ErrMalformed, doc.NDays)
	}
	want := doc.NDays + 1
	if len(doc.RescaleVec) > 0 && len(doc.RescaleVec) != want {
		return fmt.Errorf("%w: rescale_vec has %d values, want %d", ErrMalformed, len(doc.RescaleVec), want)
	}
	fresh := New(doc.Label, doc.NDays)
	fresh.Parameters = doc.Parameters
	fresh.RescaleVec = doc.RescaleVec
	for name, values := range doc.Results {
		s, err := fresh.Series(Channel(name))
		if err != nil {
			return err
		}
		if len(values) != want {
			return fmt.Errorf("%w: channel %s has %d values, want %d", ErrMalformed, name, len(values), want)
		}
		s.Values = values
	}
	for name, b := range doc.Bounds {
		s, err := fresh.Series(Channel(name))
		if err != nil {
			return err
		}
		if len(b.Low) != want || len(b.High) != want {
			return fmt.Errorf("%w: bounds of %s have %d/%d values, want %d", ErrMalformed, name, len(b.Low), len(b.High), want)
		}
		s.Low, s.High = b.Low, b.High
	}
	*r = *fresh
	return nil
}

// WriteJSON writes the results with sorted keys and 4-space indentation.
func (r *Results) WriteJSON(w io.Writer) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	// Re-encode through RawMessage to apply indentation.
	if err := enc.Encode(json.RawMessage(data)); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}

// WriteJSONFile writes the results to path, creating parent directories.
func (r *Results) WriteJSONFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create results file: %w", err)
	}
	if err := r.WriteJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadJSON decodes a results document from rd.
func ReadJSON(rd io.Reader) (*Results, error) {
	var r Results
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	return &r, nil
}

// ReadJSONFile loads a results file written by WriteJSONFile.
func ReadJSONFile(path string) (*Results, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file: %w", err)
	}
	defer f.Close()
	return ReadJSON(f)
}

// finite replaces NaN and infinities, which JSON cannot encode, with 0.
func finite(in []float64) []float64 {
	if in == nil {
		return nil
	}
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = finiteValue(v)
	}
	return out
}

func finiteValue(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
