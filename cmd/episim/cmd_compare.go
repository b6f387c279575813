package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/episim/internal/params"
	"github.com/nvandessel/episim/internal/scenario"
)

func newCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare an entire population with dynamic and static rescaling",
		Long: `Compare simulating an entire population against simulating a smaller
one with dynamic rescaling and with static scaling.

For each scale s the comparison runs three ensembles: entire (base_pop*s
agents), rescale (base_pop agents, pop_scale s, dynamic rescaling) and
static (base_pop agents, pop_infected/s seeds, pop_scale s). It reports
final cumulative and daily infections, tests and diagnoses for each, and
the relative deviation of the rescaled runs from the entire population.

Options come from the defaults, then --options (YAML or JSON), then flags.

Examples:
  episim compare
  episim compare --scales 5,10 --intervention change_beta
  episim compare --base-pop 2000 --runs 3 --out report.json --json`,
		Args: cobra.NoArgs,
		RunE: runCompare,
	}
	cmd.Flags().String("options", "", "YAML or JSON comparison options file")
	cmd.Flags().Int("base-pop", 0, "Agents in the rescaled configurations")
	cmd.Flags().Int("pop-infected", 0, "Initial infections")
	cmd.Flags().Float64Slice("scales", nil, "Population scale factors")
	cmd.Flags().Int("n-days", 0, "Days to simulate")
	cmd.Flags().Float64("beta", 0, "Transmission rate")
	cmd.Flags().String("intervention", "", "change_beta, test_num or test_prob")
	cmd.Flags().Int("intervention-day", 0, "Day the intervention starts")
	cmd.Flags().Int("runs", 0, "Runs per configuration (default ensemble.runs)")
	cmd.Flags().Int("workers", 0, "Runs to execute at once (default ensemble.workers)")
	cmd.Flags().Int64("seed", 0, "Base random seed (default simulation.seed)")
	cmd.Flags().String("pop-type", "", "random or hybrid (default simulation.pop_type)")
	cmd.Flags().StringSlice("tag", nil, "Tag stored with the comparison (repeatable)")
	cmd.Flags().String("out", "", "Write the report as JSON to this file")
	cmd.Flags().Bool("no-save", false, "Do not save the comparison to history")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this file")
	return cmd
}

func runCompare(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	noSave, _ := cmd.Flags().GetBool("no-save")

	opts, err := compareOptionsFromFlags(cmd)
	if err != nil {
		return err
	}

	e, err := newEnv(cmd, envOptions{history: true, noSave: noSave})
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	tags, _ := cmd.Flags().GetStringSlice("tag")
	out, err := e.runner().Compare(ctx, opts, tags...)
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("out"); path != "" {
		if !filepath.IsAbs(path) && e.cfg.Output.Dir != "" {
			path = filepath.Join(e.cfg.Output.Dir, path)
		}
		data, err := json.MarshalIndent(out.Report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	if jsonOut {
		doc := out.Report.Document()
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"id":         out.ID,
			"configs":    doc.Configs,
			"comparison": doc.Comparison,
			"deviation":  doc.Deviation,
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Final values:")
	if err := out.Report.Comparison.WriteTable(w); err != nil {
		return err
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Deviation from entire population:")
	if err := out.Report.WriteDeviationTable(w); err != nil {
		return err
	}
	if out.ID != "" {
		fmt.Fprintf(w, "\nSaved as %s\n", out.ID)
	}
	return nil
}

// compareOptionsFromFlags starts from the standard comparison, applies the
// options file and then every flag that was set. Runs, seed and pop type
// stay zero unless given so the configuration supplies them.
func compareOptionsFromFlags(cmd *cobra.Command) (scenario.Options, error) {
	o := scenario.DefaultOptions()
	o.Runs, o.Seed, o.PopType = 0, 0, ""

	if path, _ := cmd.Flags().GetString("options"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return o, fmt.Errorf("failed to read options file: %w", err)
		}
		if err := yaml.Unmarshal(data, &o); err != nil {
			return o, fmt.Errorf("failed to parse options file %s: %w", filepath.Base(path), err)
		}
	}

	f := cmd.Flags()
	if f.Changed("base-pop") {
		o.BasePop, _ = f.GetInt("base-pop")
	}
	if f.Changed("pop-infected") {
		o.PopInfected, _ = f.GetInt("pop-infected")
	}
	if f.Changed("scales") {
		o.Scales, _ = f.GetFloat64Slice("scales")
	}
	if f.Changed("n-days") {
		o.NDays, _ = f.GetInt("n-days")
	}
	if f.Changed("beta") {
		o.Beta, _ = f.GetFloat64("beta")
	}
	if f.Changed("intervention") {
		v, _ := f.GetString("intervention")
		o.Intervention = scenario.Intervention(v)
	}
	if f.Changed("intervention-day") {
		o.InterventionDay, _ = f.GetInt("intervention-day")
	}
	if f.Changed("runs") {
		o.Runs, _ = f.GetInt("runs")
	}
	if f.Changed("workers") {
		o.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("seed") {
		o.Seed, _ = f.GetInt64("seed")
	}
	if f.Changed("pop-type") {
		v, _ := f.GetString("pop-type")
		o.PopType = params.PopType(v)
	}
	return o, nil
}
