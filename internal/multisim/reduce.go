package multisim

import (
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"

	"github.com/nvandessel/episim/internal/results"
)

// ReduceOptions controls how runs are collapsed.
type ReduceOptions struct {
	// UseMean reports mean ± K standard deviations instead of the median
	// with quantile bounds.
	UseMean bool
	K       float64
	Low     float64
	High    float64
}

// DefaultReduceOptions is the median with the 10th and 90th percentiles.
func DefaultReduceOptions() ReduceOptions {
	return ReduceOptions{K: 2, Low: 0.1, High: 0.9}
}

// withDefaults fills in the 10th and 90th percentiles when neither quantile
// is set.
func (o ReduceOptions) withDefaults() ReduceOptions {
	if !o.UseMean && o.Low == 0 && o.High == 0 {
		o.Low, o.High = 0.1, 0.9
	}
	return o
}

func (o ReduceOptions) validate() error {
	if o.UseMean {
		if o.K < 0 {
			return fmt.Errorf("reduce: K must be non-negative, got %v", o.K)
		}
		return nil
	}
	if o.Low < 0 || o.High > 1 || o.Low > o.High {
		return fmt.Errorf("reduce: quantiles must satisfy 0 <= low <= high <= 1, got %v and %v", o.Low, o.High)
	}
	return nil
}

// Reduce collapses runs into one result. Every channel gets a central value
// per day plus Low and High bounds, with Low <= value <= High.
func Reduce(label string, runs []*results.Results, opts ReduceOptions) (*results.Results, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	nDays, err := commonLength(runs)
	if err != nil {
		return nil, err
	}

	out := results.New(label, nDays)
	out.Parameters = runs[0].Parameters
	column := make([]float64, len(runs))

	reduceInto := func(values, low, high []float64, get func(r *results.Results) []float64) {
		series := make([][]float64, len(runs))
		for i, r := range runs {
			series[i] = get(r)
		}
		for t := range values {
			for i := range runs {
				column[i] = series[i][t]
			}
			values[t], low[t], high[t] = summarize(column, opts)
		}
	}

	for _, ch := range results.All() {
		s := out.MustSeries(ch)
		s.Low = make([]float64, nDays+1)
		s.High = make([]float64, nDays+1)
		reduceInto(s.Values, s.Low, s.High, func(r *results.Results) []float64 {
			return r.MustSeries(ch).Values
		})
	}

	if len(runs[0].RescaleVec) == nDays+1 {
		out.RescaleVec = make([]float64, nDays+1)
		scratch := make([]float64, nDays+1)
		reduceInto(out.RescaleVec, scratch, make([]float64, nDays+1), func(r *results.Results) []float64 {
			if len(r.RescaleVec) != nDays+1 {
				return make([]float64, nDays+1)
			}
			return r.RescaleVec
		})
	}
	return out, nil
}

// summarize returns the central value and bounds of xs. xs is reordered.
func summarize(xs []float64, opts ReduceOptions) (value, low, high float64) {
	if opts.UseMean {
		mean, sd := meanStd(xs)
		return mean, math.Max(mean-opts.K*sd, minOf(xs)), math.Min(mean+opts.K*sd, maxOf(xs))
	}
	sort.Float64s(xs)
	value = quantile(xs, 0.5)
	low = math.Min(quantile(xs, opts.Low), value)
	high = math.Max(quantile(xs, opts.High), value)
	return value, low, high
}

// quantile interpolates linearly between the closest ranks of sorted xs.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func meanStd(xs []float64) (mean, sd float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		sd += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sd / float64(len(xs)))
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Min(m, x)
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		m = math.Max(m, x)
	}
	return m
}

func commonLength(runs []*results.Results) (int, error) {
	if len(runs) == 0 {
		return 0, fmt.Errorf("%w: no runs", ErrMismatchedRuns)
	}
	nDays := runs[0].NDays
	for i, r := range runs[1:] {
		if r.NDays != nDays {
			return 0, fmt.Errorf("%w: run %d has %d days, run 0 has %d", ErrMismatchedRuns, i+1, r.NDays, nDays)
		}
	}
	return nDays, nil
}

// Combine sums count channels across runs. r_eff is averaged and the other
// derived channels are recomputed from the summed counts.
func Combine(label string, runs []*results.Results) (*results.Results, error) {
	nDays, err := commonLength(runs)
	if err != nil {
		return nil, err
	}
	out := results.New(label, nDays)
	out.Parameters = runs[0].Parameters
	for _, ch := range results.All() {
		info, _ := results.Lookup(ch)
		if !info.Count {
			continue
		}
		dst := out.MustSeries(ch).Values
		for _, r := range runs {
			for t, v := range r.MustSeries(ch).Values {
				dst[t] += v
			}
		}
	}
	reff := out.MustSeries(results.REff).Values
	for _, r := range runs {
		for t, v := range r.MustSeries(results.REff).Values {
			reff[t] += v / float64(len(runs))
		}
	}
	out.DeriveRates()
	return out, nil
}

// Comparison holds the final value of selected channels for several results.
type Comparison struct {
	Labels   []string                      `json:"labels"`
	Channels []string                      `json:"channels"`
	Values   map[string]map[string]float64 `json:"values"`
}

// Compare builds a comparison of the given channels across results. An
// unknown channel fails with results.ErrUnknownChannel.
func Compare(rs []*results.Results, channels []string) (*Comparison, error) {
	c := &Comparison{
		Channels: append([]string(nil), channels...),
		Values:   make(map[string]map[string]float64, len(rs)),
	}
	for i, r := range rs {
		label := r.Label
		if _, dup := c.Values[label]; dup || label == "" {
			label = fmt.Sprintf("%s#%d", r.Label, i)
		}
		row := make(map[string]float64, len(channels))
		for _, ch := range channels {
			v, err := r.Last(ch)
			if err != nil {
				return nil, err
			}
			row[ch] = v
		}
		c.Labels = append(c.Labels, label)
		c.Values[label] = row
	}
	return c, nil
}

// WriteTable prints the comparison with one row per channel and one column
// per result.
func (c *Comparison) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "channel\t")
	for _, l := range c.Labels {
		fmt.Fprintf(tw, "%s\t", l)
	}
	fmt.Fprintln(tw)
	for _, ch := range c.Channels {
		fmt.Fprintf(tw, "%s\t", ch)
		for _, l := range c.Labels {
			fmt.Fprintf(tw, "%.0f\t", c.Values[l][ch])
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
