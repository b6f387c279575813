package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/episim/internal/results"
	"github.com/nvandessel/episim/internal/store"
)

const shortIDLen = 8

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

// historyStore opens the run store for the read and manage commands.
func historyStore(cmd *cobra.Command) (*env, store.RunStore, error) {
	e, err := newEnv(cmd, envOptions{})
	if err != nil {
		return nil, nil, err
	}
	st, err := e.openHistory()
	if err != nil {
		e.Close()
		return nil, nil, err
	}
	return e, st, nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved runs, newest first",
		Long: `List runs saved to history, newest first.

Examples:
  episim history
  episim history --kind multisim --limit 5
  episim history --tag baseline --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			kind, _ := cmd.Flags().GetString("kind")
			tag, _ := cmd.Flags().GetString("tag")
			limit, _ := cmd.Flags().GetInt("limit")

			if kind != "" && !store.Kind(kind).Valid() {
				return fmt.Errorf("invalid kind %q (valid: sim, multisim, scenario)", kind)
			}

			e, st, err := historyStore(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			runs, err := st.List(cmd.Context(), store.ListFilter{Kind: store.Kind(kind), Tag: tag, Limit: limit})
			if err != nil {
				return err
			}

			if jsonOut {
				if runs == nil {
					runs = []store.Run{}
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"runs": runs, "count": len(runs)})
			}

			w := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(w, "No runs in history.")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tKIND\tLABEL\tRUNS\tDAYS\tCUM_INFECTIONS\tTAGS")
			for _, r := range runs {
				cum := "-"
				if v, ok := r.Summary[string(results.CumInfections)]; ok {
					cum = formatValue(v)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					shortID(r.ID), r.CreatedAt.Local().Format(time.DateTime), r.Kind, r.Label,
					r.NRuns, r.NDays, cum, strings.Join(r.Tags, ","))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("kind", "", "Filter by kind: sim, multisim or scenario")
	cmd.Flags().String("tag", "", "Filter by tag")
	cmd.Flags().Int("limit", 20, "Maximum runs to list (0 for all)")
	return cmd
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved run",
		Long: `Show a saved run by id or unique id prefix: its parameters and the
final value of every channel, or the daily values of one channel.

Examples:
  episim show 3f2a
  episim show 3f2a --channel new_infections
  episim show 3f2a --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			channel, _ := cmd.Flags().GetString("channel")

			e, st, err := historyStore(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			run, err := st.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if channel != "" {
				return showChannel(cmd, run, channel, jsonOut)
			}

			if jsonOut {
				view := *run
				view.Results = nil
				return writeJSON(cmd.OutOrStdout(), view)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ID:       %s\n", run.ID)
			fmt.Fprintf(w, "Label:    %s\n", run.Label)
			fmt.Fprintf(w, "Kind:     %s\n", run.Kind)
			fmt.Fprintf(w, "Created:  %s\n", run.CreatedAt.Local().Format(time.RFC3339))
			fmt.Fprintf(w, "Seed:     %d\n", run.Seed)
			fmt.Fprintf(w, "Runs:     %d\n", run.NRuns)
			fmt.Fprintf(w, "Days:     %d\n", run.NDays)
			if len(run.Tags) > 0 {
				fmt.Fprintf(w, "Tags:     %s\n", strings.Join(run.Tags, ", "))
			}
			if len(run.Summary) > 0 {
				fmt.Fprintln(w, "\nFinal values:")
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				for _, k := range sortedSummary(run.Summary) {
					fmt.Fprintf(tw, "  %s\t%s\n", k, formatValue(run.Summary[k]))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			if run.Kind == store.KindScenario {
				fmt.Fprintf(w, "\nUse 'episim export %s' for the full comparison report.\n", shortID(run.ID))
			}
			return nil
		},
	}
	cmd.Flags().String("channel", "", "Print the daily values of one channel")
	return cmd
}

func showChannel(cmd *cobra.Command, run *store.Run, channel string, jsonOut bool) error {
	if run.Results == nil {
		return fmt.Errorf("run %s is a %s record without channel data", shortID(run.ID), run.Kind)
	}
	values, err := run.Results.Channel(channel)
	if err != nil {
		return err
	}
	low, high, _ := run.Results.Bounds(channel)

	if jsonOut {
		out := map[string]any{"id": run.ID, "channel": channel, "values": jsonFloats(values)}
		if low != nil {
			out["low"], out["high"] = jsonFloats(low), jsonFloats(high)
		}
		return writeJSON(cmd.OutOrStdout(), out)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
	if low != nil {
		fmt.Fprintf(tw, "day\t%s\tlow\thigh\t\n", channel)
	} else {
		fmt.Fprintf(tw, "day\t%s\t\n", channel)
	}
	for t, v := range values {
		if low != nil {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t\n", t, formatValue(v), formatValue(low[t]), formatValue(high[t]))
		} else {
			fmt.Fprintf(tw, "%d\t%s\t\n", t, formatValue(v))
		}
	}
	return tw.Flush()
}

// jsonFloats maps NaN and infinities, which JSON cannot carry, to null.
func jsonFloats(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[i] = &values[i]
		}
	}
	return out
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write a saved run's results to a file",
		Long: `Write a saved run's results as JSON or Arrow IPC. Scenario records are
written as their JSON comparison report.

Examples:
  episim export 3f2a --out baseline.json
  episim export 3f2a --out baseline.arrow
  episim export 3f2a --format arrow`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			out, _ := cmd.Flags().GetString("out")
			format, _ := cmd.Flags().GetString("format")

			e, st, err := historyStore(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			run, err := st.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if run.Results == nil {
				if len(run.Report) == 0 {
					return fmt.Errorf("run %s has nothing to export", shortID(run.ID))
				}
				if format != "" && format != "json" {
					return fmt.Errorf("scenario records export as json only")
				}
				format = "json"
			}
			if out == "" {
				ext := ".json"
				if resolveFormat(format, "", e.cfg.Output.Format) == "arrow" {
					ext = ".arrow"
				}
				out = fmt.Sprintf("%s-%s%s", run.Label, shortID(run.ID), ext)
				out = strings.ReplaceAll(out, " ", "_")
			}
			if !filepath.IsAbs(out) && e.cfg.Output.Dir != "" {
				out = filepath.Join(e.cfg.Output.Dir, out)
			}
			format = resolveFormat(format, out, e.cfg.Output.Format)

			if run.Results == nil {
				err = os.WriteFile(out, append(append([]byte{}, run.Report...), '\n'), 0644)
			} else {
				err = writeResults(run.Results, out, format)
			}
			if err != nil {
				return fmt.Errorf("failed to export run: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"id": run.ID, "path": out, "format": format})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", shortID(run.ID), out)
			return nil
		},
	}
	cmd.Flags().String("out", "", "Output file; relative paths are under output.dir (default <label>-<id>.<ext>)")
	cmd.Flags().String("format", "", "json or arrow (default from extension, then output.format)")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			e, st, err := historyStore(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			// Resolve the prefix first so the message names the full id.
			run, err := st.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := st.Delete(cmd.Context(), run.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "deleted", "id": run.ID})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%s)\n", run.ID, run.Label)
			return nil
		},
	}
}

func newChannelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List result channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				type channelInfo struct {
					Name        string `json:"name"`
					Description string `json:"description"`
					Count       bool   `json:"count"`
				}
				var out []channelInfo
				for _, ch := range results.All() {
					info, _ := results.Lookup(ch)
					out = append(out, channelInfo{Name: string(ch), Description: info.Name, Count: info.Count})
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, ch := range results.All() {
				info, _ := results.Lookup(ch)
				fmt.Fprintf(tw, "%s\t%s\n", ch, info.Name)
			}
			return tw.Flush()
		},
	}
}
