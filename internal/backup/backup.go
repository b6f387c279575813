// Package backup provides backup and restore of the run history.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nvandessel/episim/internal/store"
)

// Snapshot is the payload of a backup file.
type Snapshot struct {
	Version   int         `json:"version"`
	CreatedAt time.Time   `json:"created_at"`
	Runs      []store.Run `json:"runs"`
}

// DefaultBackupDir returns the default backup directory (~/.episim/backups/).
func DefaultBackupDir() (string, error) {
	dir, err := store.GlobalEpisimPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "backups"), nil
}

// Backup writes every run in runStore, with results and reports, to
// outputPath.
func Backup(ctx context.Context, runStore store.RunStore, outputPath string) (*Snapshot, error) {
	listed, err := runStore.List(ctx, store.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	snap := &Snapshot{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		Runs:      make([]store.Run, 0, len(listed)),
	}
	// List returns newest first; restore in creation order.
	for i := len(listed) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		run, err := runStore.Get(ctx, listed[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s: %w", listed[i].ID, err)
		}
		snap.Runs = append(snap.Runs, *run)
	}

	if err := Write(outputPath, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// RestoreMode controls how restore handles existing runs.
type RestoreMode string

const (
	// RestoreMerge skips runs whose id already exists (default).
	RestoreMerge RestoreMode = "merge"
	// RestoreReplace deletes every existing run before restoring.
	RestoreReplace RestoreMode = "replace"
)

// RestoreResult contains statistics about the restore operation.
type RestoreResult struct {
	RunsRestored int `json:"runs_restored"`
	RunsSkipped  int `json:"runs_skipped"`
	RunsDeleted  int `json:"runs_deleted,omitempty"`
}

// Restore loads the runs in inputPath into runStore.
func Restore(ctx context.Context, runStore store.RunStore, inputPath string, mode RestoreMode) (*RestoreResult, error) {
	switch mode {
	case "":
		mode = RestoreMerge
	case RestoreMerge, RestoreReplace:
	default:
		return nil, fmt.Errorf("invalid restore mode %q (valid: merge, replace)", mode)
	}

	snap, err := Read(inputPath)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{}
	if mode == RestoreReplace {
		existing, err := runStore.List(ctx, store.ListFilter{})
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		for _, r := range existing {
			if err := runStore.Delete(ctx, r.ID); err != nil {
				return nil, fmt.Errorf("failed to delete run %s: %w", r.ID, err)
			}
			result.RunsDeleted++
		}
	}

	for _, run := range snap.Runs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if mode == RestoreMerge {
			_, err := runStore.Get(ctx, run.ID)
			switch {
			case err == nil:
				result.RunsSkipped++
				continue
			case !errors.Is(err, store.ErrNotFound):
				return nil, fmt.Errorf("failed to check existing run %s: %w", run.ID, err)
			}
		}
		if _, err := runStore.Save(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to restore run %s: %w", run.ID, err)
		}
		result.RunsRestored++
	}

	return result, nil
}

// GenerateBackupPath creates a timestamped backup filename in the given directory.
func GenerateBackupPath(dir string) string {
	ts := time.Now().UTC().Format("20060102-150405")
	return filepath.Join(dir, fmt.Sprintf("%s%s%s", filePrefix, ts, fileExt))
}

// EnsureDir creates dir with owner-only permissions.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	return nil
}
