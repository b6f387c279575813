package results

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

const (
	dayColumn    = "t"
	lowSuffix    = ":low"
	highSuffix   = ":high"
	metaLabel    = "label"
	metaNDays    = "n_days"
	metaRescaled = "rescale_vec"
)

// arrowSchema builds a schema with a day column, one float64 column per
// channel, and bound columns for reduced channels.
func (r *Results) arrowSchema() (*arrow.Schema, []string) {
	fields := []arrow.Field{{Name: dayColumn, Type: arrow.PrimitiveTypes.Int64}}
	var names []string
	for _, ch := range All() {
		s := r.channels[ch]
		fields = append(fields, arrow.Field{Name: string(ch), Type: arrow.PrimitiveTypes.Float64})
		names = append(names, string(ch))
		if s.Low != nil && s.High != nil {
			fields = append(fields,
				arrow.Field{Name: string(ch) + lowSuffix, Type: arrow.PrimitiveTypes.Float64},
				arrow.Field{Name: string(ch) + highSuffix, Type: arrow.PrimitiveTypes.Float64},
			)
			names = append(names, string(ch)+lowSuffix, string(ch)+highSuffix)
		}
	}
	md := arrow.NewMetadata(
		[]string{metaLabel, metaNDays, metaRescaled},
		[]string{r.Label, strconv.Itoa(r.NDays), joinFloats(r.RescaleVec)},
	)
	return arrow.NewSchema(fields, &md), names
}

func (r *Results) column(name string) []float64 {
	switch {
	case strings.HasSuffix(name, lowSuffix):
		return r.channels[Channel(strings.TrimSuffix(name, lowSuffix))].Low
	case strings.HasSuffix(name, highSuffix):
		return r.channels[Channel(strings.TrimSuffix(name, highSuffix))].High
	default:
		return r.channels[Channel(name)].Values
	}
}

// WriteArrow writes the results as an Arrow IPC file with a single record
// batch: one row per day.
func (r *Results) WriteArrow(w io.WriteSeeker) error {
	schema, names := r.arrowSchema()
	mem := memory.DefaultAllocator

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	days := make([]int64, r.Len())
	for i := range days {
		days[i] = int64(i)
	}
	b.Field(0).(*array.Int64Builder).AppendValues(days, nil)
	for i, name := range names {
		values := r.column(name)
		fb := b.Field(i + 1).(*array.Float64Builder)
		for t := 0; t < r.Len(); t++ {
			if t < len(values) {
				fb.Append(values[t])
			} else {
				fb.AppendNull()
			}
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("failed to create arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("failed to write arrow record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to close arrow writer: %w", err)
	}
	return nil
}

// WriteArrowFile writes the results to path in Arrow IPC file format.
func (r *Results) WriteArrowFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create arrow file: %w", err)
	}
	if err := r.WriteArrow(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadArrowFile loads results written by WriteArrowFile. Parameters are not
// stored in the Arrow format and come back nil.
func ReadArrowFile(path string) (*Results, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open arrow file: %w", err)
	}
	defer f.Close()

	fr, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, fmt.Errorf("failed to read arrow file: %w", err)
	}
	defer fr.Close()

	md := fr.Schema().Metadata()
	nDays, err := strconv.Atoi(metaValue(md, metaNDays))
	if err != nil {
		return nil, fmt.Errorf("invalid %s metadata: %w", metaNDays, err)
	}
	out := New(metaValue(md, metaLabel), nDays)
	if out.RescaleVec, err = splitFloats(metaValue(md, metaRescaled)); err != nil {
		return nil, fmt.Errorf("invalid %s metadata: %w", metaRescaled, err)
	}

	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.Record(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read record %d: %w", i, err)
		}
		for c, field := range rec.Schema().Fields() {
			if field.Name == dayColumn {
				continue
			}
			col, ok := rec.Column(c).(*array.Float64)
			if !ok {
				return nil, fmt.Errorf("column %q is %s, want float64", field.Name, field.Type)
			}
			if err := out.appendColumn(field.Name, col.Float64Values()); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (r *Results) appendColumn(name string, values []float64) error {
	base := strings.TrimSuffix(strings.TrimSuffix(name, lowSuffix), highSuffix)
	s, err := r.Series(Channel(base))
	if err != nil {
		return err
	}
	switch {
	case strings.HasSuffix(name, lowSuffix):
		s.Low = append(s.Low[:0:0], values...)
	case strings.HasSuffix(name, highSuffix):
		s.High = append(s.High[:0:0], values...)
	default:
		s.Values = append(s.Values[:0:0], values...)
	}
	return nil
}

func metaValue(md arrow.Metadata, key string) string {
	if i := md.FindKey(key); i >= 0 {
		return md.Values()[i]
	}
	return ""
}

func joinFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func splitFloats(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
