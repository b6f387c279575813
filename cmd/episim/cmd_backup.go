package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/episim/internal/backup"
	"github.com/nvandessel/episim/internal/pathutil"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up and restore run history",
		Long: `Back up run history to compressed, checksummed snapshot files and
restore from them.

Backups live in ~/.episim/backups by default. Paths outside that directory
and output.dir are rejected.

Examples:
  episim backup create
  episim backup list
  episim backup verify ~/.episim/backups/episim-history-20260301-120000.json.gz
  episim backup restore ~/.episim/backups/episim-history-20260301-120000.json.gz
  episim backup prune --keep 5 --max-age 30d`,
	}
	cmd.AddCommand(
		newBackupCreateCmd(),
		newBackupListCmd(),
		newBackupVerifyCmd(),
		newBackupRestoreCmd(),
		newBackupPruneCmd(),
	)
	return cmd
}

// backupPath validates path against ~/.episim/backups and the output dir.
func backupPath(e *env, path string) error {
	return pathutil.ValidateBackupPath(path, e.cfg.Output.Dir)
}

func newBackupCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Write a snapshot of the run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			out, _ := cmd.Flags().GetString("output")
			keep, _ := cmd.Flags().GetInt("keep")

			e, st, err := historyStore(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			dir, err := backup.DefaultBackupDir()
			if err != nil {
				return err
			}
			if out == "" {
				out = backup.GenerateBackupPath(dir)
			} else if err := backupPath(e, out); err != nil {
				return err
			}

			snap, err := backup.Backup(cmd.Context(), st, out)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			var deleted []string
			if keep > 0 && filepath.Dir(out) == dir {
				if deleted, err = backup.ApplyRetention(dir, &backup.CountPolicy{MaxCount: keep}); err != nil {
					return err
				}
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"path": out, "runs": len(snap.Runs), "created_at": snap.CreatedAt, "pruned": len(deleted),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backed up %d run(s) to %s\n", len(snap.Runs), out)
			if len(deleted) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d old backup(s)\n", len(deleted))
			}
			return nil
		},
	}
	cmd.Flags().String("output", "", "Backup file (default ~/.episim/backups/episim-history-<timestamp>.json.gz)")
	cmd.Flags().Int("keep", 10, "Backups to keep in the default directory after creating one (0 keeps all)")
	return cmd
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups in ~/.episim/backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			dir, err := backup.DefaultBackupDir()
			if err != nil {
				return err
			}
			backups, err := backup.ListBackups(dir)
			if err != nil {
				return err
			}

			if jsonOut {
				if backups == nil {
					backups = []backup.Info{}
				}
				return writeJSON(cmd.OutOrStdout(), backups)
			}
			if len(backups) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No backups in %s\n", dir)
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tCREATED\tRUNS\tSIZE\tSTATUS")
			for _, b := range backups {
				status := "ok"
				if !b.Valid {
					status = "unreadable"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", filepath.Base(b.Path),
					b.CreatedAt.Local().Format(time.DateTime), b.RunCount, b.Size, status)
			}
			return tw.Flush()
		},
	}
}

func newBackupVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Check a backup's checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			verr := backup.VerifyChecksum(args[0])
			if jsonOut {
				out := map[string]any{"path": args[0], "valid": verr == nil}
				if verr != nil {
					out["error"] = verr.Error()
				}
				if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
				return verr
			}
			if verr != nil {
				return fmt.Errorf("%s: %w", pathutil.RedactPath(args[0]), verr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: checksum ok\n", pathutil.RedactPath(args[0]))
			return nil
		},
	}
}

func newBackupRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore runs from a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			mode, _ := cmd.Flags().GetString("mode")

			e, st, err := historyStore(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := backupPath(e, args[0]); err != nil {
				return err
			}
			result, err := backup.Restore(cmd.Context(), st, args[0], backup.RestoreMode(mode))
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d run(s), skipped %d", result.RunsRestored, result.RunsSkipped)
			if result.RunsDeleted > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), ", deleted %d", result.RunsDeleted)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().String("mode", string(backup.RestoreMerge), "merge (skip existing runs) or replace (clear history first)")
	return cmd
}

func newBackupPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old backups",
		Long: `Delete backups in ~/.episim/backups that no limit keeps. A backup is
kept if any limit keeps it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			keep, _ := cmd.Flags().GetInt("keep")
			maxAgeStr, _ := cmd.Flags().GetString("max-age")
			maxSizeStr, _ := cmd.Flags().GetString("max-size")

			var maxAge time.Duration
			var maxSize int64
			var err error
			if maxAgeStr != "" {
				if maxAge, err = backup.ParseDuration(maxAgeStr); err != nil {
					return err
				}
			}
			if maxSizeStr != "" {
				if maxSize, err = backup.ParseSize(maxSizeStr); err != nil {
					return err
				}
			}
			if keep <= 0 && maxAge == 0 && maxSize == 0 {
				return fmt.Errorf("give at least one of --keep, --max-age or --max-size")
			}

			dir, err := backup.DefaultBackupDir()
			if err != nil {
				return err
			}
			deleted, err := backup.ApplyRetention(dir, backup.Policy(keep, maxAge, maxSize))
			if err != nil {
				return err
			}

			if jsonOut {
				if deleted == nil {
					deleted = []string{}
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"deleted": deleted})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d backup(s)\n", len(deleted))
			return nil
		},
	}
	cmd.Flags().Int("keep", 0, "Keep the N newest backups")
	cmd.Flags().String("max-age", "", "Keep backups newer than this (e.g. 30d, 2w, 720h)")
	cmd.Flags().String("max-size", "", "Keep the newest backups up to this total size (e.g. 500MB)")
	return cmd
}
