package main

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvandessel/episim/internal/results"
	"github.com/nvandessel/episim/internal/runner"
	"github.com/nvandessel/episim/internal/store"
)

// headlineChannels are printed after a run, in this order.
var headlineChannels = []results.Channel{
	results.CumInfections,
	results.CumSymptomatic,
	results.CumSevere,
	results.CumCritical,
	results.CumDeaths,
	results.CumTests,
	results.CumDiagnoses,
	results.CumQuarantined,
	results.NInfectious,
	results.REff,
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation",
		Long: `Run one simulation and save it to history.

Parameters start from the defaults for the population type and are
overridden by --params (YAML or JSON) and then by --set.

Examples:
  episim run
  episim run --set pop_size=50000 --set pop_scale=10 --set rescale=true
  episim run --params scenario.yaml --out baseline.arrow
  episim run --pop-type hybrid --seed 7 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, 1)
		},
	}
	addRunFlags(cmd)
	return cmd
}

func newMultiRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "multirun",
		Short: "Run an ensemble and reduce it to median and bounds",
		Long: `Run the same parameters with seeds seed, seed+1, ... and reduce the
ensemble to a median (or mean) with low/high bounds.

Examples:
  episim multirun --runs 20
  episim multirun --runs 50 --workers 8 --set beta=0.02 --out ensemble.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, _ := cmd.Flags().GetInt("runs")
			return runSimulation(cmd, runs)
		},
	}
	addRunFlags(cmd)
	cmd.Flags().Int("runs", 0, "Ensemble size (default ensemble.runs)")
	cmd.Flags().Int("workers", 0, "Runs to execute at once (default ensemble.workers)")
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("label", "", "Run label (default sim)")
	cmd.Flags().String("pop-type", "", "Population type: random or hybrid (default simulation.pop_type)")
	cmd.Flags().String("params", "", "YAML or JSON parameter file")
	cmd.Flags().StringArray("set", nil, "Parameter override key=value (repeatable)")
	cmd.Flags().Int64("seed", 0, "Random seed (default simulation.seed)")
	cmd.Flags().StringSlice("tag", nil, "Tag stored with the run (repeatable)")
	cmd.Flags().String("out", "", "Write results to this file; relative paths are under output.dir")
	cmd.Flags().String("format", "", "Results file format: json or arrow (default from extension, then output.format)")
	cmd.Flags().Bool("no-save", false, "Do not save the run to history")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this file")
}

func runSimulation(cmd *cobra.Command, runs int) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	noSave, _ := cmd.Flags().GetBool("no-save")

	e, err := newEnv(cmd, envOptions{history: true, noSave: noSave})
	if err != nil {
		return err
	}
	defer e.Close()

	req, err := requestFromFlags(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Lookup("runs") != nil {
		if runs == 0 {
			runs = e.cfg.Ensemble.Runs
		}
		req.Workers, _ = cmd.Flags().GetInt("workers")
	}
	req.Runs = runs

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	out, err := e.runner().Run(ctx, req)
	if err != nil {
		return err
	}

	outPath, err := writeResultsFile(cmd, e, out.Results)
	if err != nil {
		return err
	}

	if jsonOut {
		record := store.FromResults(out.Kind, out.Results, out.Seed, out.NRuns)
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"id":      out.ID,
			"label":   out.Results.Label,
			"kind":    out.Kind,
			"seed":    out.Seed,
			"n_runs":  out.NRuns,
			"n_days":  out.Results.NDays,
			"summary": record.Summary,
			"output":  outPath,
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s: %d day(s), seed %d", out.Results.Label, out.Results.NDays, out.Seed)
	if out.NRuns > 1 {
		fmt.Fprintf(w, ", %d runs", out.NRuns)
	}
	fmt.Fprintln(w)
	if err := writeSummary(w, out.Results); err != nil {
		return err
	}
	if out.ID != "" {
		fmt.Fprintf(w, "\nSaved as %s\n", out.ID)
	}
	if outPath != "" {
		fmt.Fprintf(w, "Results written to %s\n", outPath)
	}
	return nil
}

func requestFromFlags(cmd *cobra.Command) (runner.Request, error) {
	label, _ := cmd.Flags().GetString("label")
	popType, _ := cmd.Flags().GetString("pop-type")
	paramFile, _ := cmd.Flags().GetString("params")
	sets, _ := cmd.Flags().GetStringArray("set")
	tags, _ := cmd.Flags().GetStringSlice("tag")

	overrides, err := parseOverrides(paramFile, sets)
	if err != nil {
		return runner.Request{}, err
	}
	req := runner.Request{
		Label:     label,
		PopType:   popType,
		Overrides: overrides,
		Tags:      tags,
	}
	if cmd.Flags().Changed("seed") {
		seed, _ := cmd.Flags().GetInt64("seed")
		req.Seed = &seed
	}
	return req, nil
}

// writeSummary prints the final value of the headline channels, with bounds
// for reduced ensembles.
func writeSummary(w io.Writer, res *results.Results) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, ch := range headlineChannels {
		s, err := res.Series(ch)
		if err != nil || len(s.Values) == 0 {
			continue
		}
		last := len(s.Values) - 1
		if len(s.Low) > last && len(s.High) > last {
			fmt.Fprintf(tw, "  %s\t%s\t[%s, %s]\n", ch, formatValue(s.Values[last]), formatValue(s.Low[last]), formatValue(s.High[last]))
		} else {
			fmt.Fprintf(tw, "  %s\t%s\n", ch, formatValue(s.Values[last]))
		}
	}
	return tw.Flush()
}

func formatValue(v float64) string {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return "n/a"
	case v == math.Trunc(v) && math.Abs(v) < 1e15:
		return fmt.Sprintf("%d", int64(v))
	default:
		return fmt.Sprintf("%.3f", v)
	}
}

// writeResultsFile writes res to --out, if given, and returns the path.
func writeResultsFile(cmd *cobra.Command, e *env, res *results.Results) (string, error) {
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		return "", nil
	}
	if !filepath.IsAbs(out) && e.cfg.Output.Dir != "" {
		out = filepath.Join(e.cfg.Output.Dir, out)
	}
	format, _ := cmd.Flags().GetString("format")
	if err := writeResults(res, out, resolveFormat(format, out, e.cfg.Output.Format)); err != nil {
		return "", err
	}
	return out, nil
}

// resolveFormat picks the explicit format, else the file extension, else
// the configured default.
func resolveFormat(explicit, path, configured string) string {
	if explicit != "" {
		return strings.ToLower(explicit)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".arrow", ".ipc", ".feather":
		return "arrow"
	case ".json":
		return "json"
	}
	if configured != "" {
		return configured
	}
	return "json"
}

func writeResults(res *results.Results, path, format string) error {
	switch format {
	case "json":
		return res.WriteJSONFile(path)
	case "arrow":
		return res.WriteArrowFile(path)
	default:
		return fmt.Errorf("unknown format %q (valid: json, arrow)", format)
	}
}

// sortedSummary returns the summary keys, sorted.
func sortedSummary(summary map[string]float64) []string {
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
