package scenario

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"

	"github.com/nvandessel/episim/internal/multisim"
)

// ConfigSummary is the serialized form of a Config.
type ConfigSummary struct {
	Name        string   `json:"name"`
	Strategy    Strategy `json:"strategy"`
	Scale       float64  `json:"scale"`
	PopSize     int      `json:"pop_size"`
	PopInfected int      `json:"pop_infected"`
	PopScale    float64  `json:"pop_scale"`
	Rescale     bool     `json:"rescale"`
}

// ReportDocument is the serialized form of a Report. Deviations that are
// not finite are null.
type ReportDocument struct {
	Configs    []ConfigSummary                `json:"configs"`
	Comparison *multisim.Comparison           `json:"comparison"`
	Deviation  map[string]map[string]*float64 `json:"deviation"`
}

// Document converts the report to its serialized form.
func (r *Report) Document() ReportDocument {
	doc := ReportDocument{
		Comparison: r.Comparison,
		Deviation:  make(map[string]map[string]*float64, len(r.Deviation)),
	}
	for _, o := range r.Outcomes {
		c := o.Config
		doc.Configs = append(doc.Configs, ConfigSummary{
			Name:        c.Name,
			Strategy:    c.Strategy,
			Scale:       c.Scale,
			PopSize:     c.Pars.PopSize,
			PopInfected: c.Pars.PopInfected,
			PopScale:    c.Pars.PopScale,
			Rescale:     c.Pars.Rescale,
		})
	}
	for name, row := range r.Deviation {
		out := make(map[string]*float64, len(row))
		for ch, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				out[ch] = nil
				continue
			}
			out[ch] = &v
		}
		doc.Deviation[name] = out
	}
	return doc
}

// MarshalJSON encodes the report's Document.
func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Document())
}

// WriteDeviationTable writes one row per rescaled configuration with its
// relative deviation from the entire-population reference, as percentages.
func (r *Report) WriteDeviationTable(w io.Writer) error {
	names := make([]string, 0, len(r.Deviation))
	for name := range r.Deviation {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "config")
	for _, ch := range Channels {
		fmt.Fprintf(tw, "\t%s", ch)
	}
	fmt.Fprintln(tw)
	for _, name := range names {
		fmt.Fprint(tw, name)
		for _, ch := range Channels {
			v := r.Deviation[name][ch]
			if math.IsInf(v, 0) || math.IsNaN(v) {
				fmt.Fprint(tw, "\tn/a")
				continue
			}
			fmt.Fprintf(tw, "\t%+.1f%%", 100*v)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
