package mcp

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/episim/internal/params"
	"github.com/nvandessel/episim/internal/ratelimit"
	"github.com/nvandessel/episim/internal/results"
	"github.com/nvandessel/episim/internal/runner"
	"github.com/nvandessel/episim/internal/scenario"
	"github.com/nvandessel/episim/internal/store"
)

const (
	channelsURI         = "episim://channels"
	defaultHistoryLimit = 20
)

func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "episim_run",
		Description: "Run an agent-based epidemic simulation, or an ensemble of seeded runs reduced to median and bounds, and save it to history",
	}, s.handleEpisimRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "episim_compare",
		Description: "Compare an entire population against dynamic rescaling and static scaling of a smaller one, reporting final values and relative deviations",
	}, s.handleEpisimCompare)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "episim_history",
		Description: "List saved runs, newest first",
	}, s.handleEpisimHistory)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "episim_channel",
		Description: "Get the daily values of one result channel from a saved run",
	}, s.handleEpisimChannel)
}

func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         channelsURI,
		Name:        "episim-channels",
		Description: "Every result channel with its description and kind.",
		MIMEType:    "text/markdown",
	}, s.handleChannelsResource)
}

func (s *Server) handleChannelsResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	var sb strings.Builder
	sb.WriteString("# Result channels\n\n")
	sb.WriteString("| channel | description | kind |\n|---|---|---|\n")
	for _, ch := range results.All() {
		info, _ := results.Lookup(ch)
		fmt.Fprintf(&sb, "| %s | %s | %s |\n", ch, info.Name, kindName(info.Kind))
	}
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{{
			URI:      channelsURI,
			MIMEType: "text/markdown",
			Text:     sb.String(),
		}},
	}, nil
}

func kindName(k results.Kind) string {
	switch k {
	case results.KindFlow:
		return "daily flow"
	case results.KindCumulative:
		return "cumulative"
	case results.KindStock:
		return "stock"
	default:
		return "derived"
	}
}

func (s *Server) handleEpisimRun(ctx context.Context, req *sdk.CallToolRequest, args EpisimRunInput) (_ *sdk.CallToolResult, _ EpisimRunOutput, retErr error) {
	start := time.Now()
	var runID string
	defer func() {
		s.auditTool("episim_run", start, runID, retErr, map[string]any{
			"label": args.Label, "pop_type": args.PopType, "overrides": args.Overrides,
			"seed": seedParam(args.Seed), "runs": args.Runs, "workers": args.Workers,
			"channels": args.Channels, "tags": args.Tags,
		})
	}()

	if err := ratelimit.CheckLimit(s.limiters, "episim_run"); err != nil {
		return nil, EpisimRunOutput{}, err
	}
	for _, ch := range args.Channels {
		if _, ok := results.Lookup(results.Channel(ch)); !ok {
			return nil, EpisimRunOutput{}, &results.UnknownChannelError{Name: ch}
		}
	}

	out, err := s.runner.Run(ctx, runner.Request{
		Label:     args.Label,
		PopType:   args.PopType,
		Overrides: args.Overrides,
		Seed:      args.Seed,
		Runs:      args.Runs,
		Workers:   args.Workers,
		Tags:      args.Tags,
	})
	if err != nil {
		return nil, EpisimRunOutput{}, fmt.Errorf("run failed: %w", err)
	}
	runID = out.ID

	record := store.FromResults(out.Kind, out.Results, out.Seed, out.NRuns)
	output := EpisimRunOutput{
		ID:      out.ID,
		Label:   out.Results.Label,
		Kind:    string(out.Kind),
		Seed:    out.Seed,
		NRuns:   out.NRuns,
		NDays:   out.Results.NDays,
		Summary: record.Summary,
	}
	if len(args.Channels) > 0 {
		output.Channels = make(map[string][]float64, len(args.Channels))
		for _, ch := range args.Channels {
			values, err := out.Results.Channel(ch)
			if err != nil {
				return nil, EpisimRunOutput{}, err
			}
			output.Channels[ch] = finite(values)
		}
	}
	output.Message = fmt.Sprintf("%s: %.0f cumulative infections and %.0f deaths after %d days",
		output.Label, record.Summary[string(results.CumInfections)],
		record.Summary[string(results.CumDeaths)], output.NDays)
	return nil, output, nil
}

func (s *Server) handleEpisimCompare(ctx context.Context, req *sdk.CallToolRequest, args EpisimCompareInput) (_ *sdk.CallToolResult, _ EpisimCompareOutput, retErr error) {
	start := time.Now()
	var runID string
	defer func() {
		s.auditTool("episim_compare", start, runID, retErr, map[string]any{
			"base_pop": args.BasePop, "scales": args.Scales, "n_days": args.NDays,
			"runs": args.Runs, "workers": args.Workers, "seed": args.Seed,
			"pop_type": args.PopType, "tags": args.Tags,
		})
	}()

	if err := ratelimit.CheckLimit(s.limiters, "episim_compare"); err != nil {
		return nil, EpisimCompareOutput{}, err
	}

	out, err := s.runner.Compare(ctx, compareOptions(args), args.Tags...)
	if err != nil {
		return nil, EpisimCompareOutput{}, fmt.Errorf("comparison failed: %w", err)
	}
	runID = out.ID

	doc := out.Report.Document()
	return nil, EpisimCompareOutput{
		ID:         out.ID,
		Configs:    doc.Configs,
		Comparison: doc.Comparison,
		Deviation:  doc.Deviation,
		Message:    fmt.Sprintf("compared %d configurations", len(doc.Configs)),
	}, nil
}

// compareOptions overlays the non-zero fields of args on the standard
// comparison. Runs, workers and seed stay zero so the runner fills them
// from configuration.
func compareOptions(args EpisimCompareInput) scenario.Options {
	o := scenario.DefaultOptions()
	if args.BasePop > 0 {
		o.BasePop = args.BasePop
	}
	if args.PopInfected > 0 {
		o.PopInfected = args.PopInfected
	}
	if len(args.Scales) > 0 {
		o.Scales = args.Scales
	}
	if args.NDays > 0 {
		o.NDays = args.NDays
	}
	if args.Beta > 0 {
		o.Beta = args.Beta
	}
	if args.Intervention != "" {
		o.Intervention = scenario.Intervention(args.Intervention)
	}
	if args.InterventionDay > 0 {
		o.InterventionDay = args.InterventionDay
	}
	o.Runs = args.Runs
	o.Workers = args.Workers
	o.Seed = args.Seed
	o.PopType = params.PopType(args.PopType)
	return o
}

func (s *Server) handleEpisimHistory(ctx context.Context, req *sdk.CallToolRequest, args EpisimHistoryInput) (_ *sdk.CallToolResult, _ EpisimHistoryOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("episim_history", start, "", retErr, map[string]any{
			"kind": args.Kind, "tag": args.Tag, "limit": args.Limit,
		})
	}()

	if err := ratelimit.CheckLimit(s.limiters, "episim_history"); err != nil {
		return nil, EpisimHistoryOutput{}, err
	}
	kind := store.Kind(args.Kind)
	if kind != "" && !kind.Valid() {
		return nil, EpisimHistoryOutput{}, fmt.Errorf("invalid kind %q (valid: sim, multisim, scenario)", args.Kind)
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	runs, err := s.store.List(ctx, store.ListFilter{Kind: kind, Tag: args.Tag, Limit: limit})
	if err != nil {
		return nil, EpisimHistoryOutput{}, err
	}
	items := make([]RunListItem, 0, len(runs))
	for _, r := range runs {
		items = append(items, RunListItem{
			ID:            r.ID,
			Label:         r.Label,
			Kind:          string(r.Kind),
			CreatedAt:     r.CreatedAt,
			Seed:          r.Seed,
			NRuns:         r.NRuns,
			NDays:         r.NDays,
			Tags:          r.Tags,
			CumInfections: summaryValue(r.Summary, results.CumInfections),
			CumDeaths:     summaryValue(r.Summary, results.CumDeaths),
		})
	}
	return nil, EpisimHistoryOutput{Runs: items, Count: len(items)}, nil
}

func seedParam(seed *int64) any {
	if seed == nil {
		return "default"
	}
	return *seed
}

func summaryValue(summary map[string]float64, ch results.Channel) *float64 {
	v, ok := summary[string(ch)]
	if !ok {
		return nil
	}
	return &v
}

func (s *Server) handleEpisimChannel(ctx context.Context, req *sdk.CallToolRequest, args EpisimChannelInput) (_ *sdk.CallToolResult, _ EpisimChannelOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("episim_channel", start, args.ID, retErr, map[string]any{
			"id": args.ID, "channel": args.Channel, "bounds": args.Bounds,
		})
	}()

	if err := ratelimit.CheckLimit(s.limiters, "episim_channel"); err != nil {
		return nil, EpisimChannelOutput{}, err
	}
	run, err := s.store.Get(ctx, args.ID)
	if err != nil {
		return nil, EpisimChannelOutput{}, err
	}
	if run.Results == nil {
		return nil, EpisimChannelOutput{}, fmt.Errorf("run %s is a %s record without channel data", run.ID, run.Kind)
	}
	values, err := run.Results.Channel(args.Channel)
	if err != nil {
		return nil, EpisimChannelOutput{}, err
	}
	info, _ := results.Lookup(results.Channel(args.Channel))

	out := EpisimChannelOutput{
		ID:          run.ID,
		Label:       run.Label,
		Channel:     args.Channel,
		Description: info.Name,
		Values:      finite(values),
	}
	if args.Bounds {
		low, high, err := run.Results.Bounds(args.Channel)
		if err != nil {
			return nil, EpisimChannelOutput{}, err
		}
		out.Low, out.High = finite(low), finite(high)
	}
	return nil, out, nil
}

// finite replaces NaN and infinities, which JSON cannot carry, with 0.
func finite(in []float64) []float64 {
	if in == nil {
		return nil
	}
	out := make([]float64, len(in))
	for i, v := range in {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[i] = v
		}
	}
	return out
}
