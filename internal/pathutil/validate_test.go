package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

const snapshot = "episim-history-20260301-120000.json.gz"

// backupLayout builds a home directory with ~/.episim/backups, an output
// directory for exported results, and a directory that is neither.
func backupLayout(t *testing.T) (backups, output, elsewhere string) {
	t.Helper()
	home := t.TempDir()
	backups = filepath.Join(home, ".episim", "backups")
	output = filepath.Join(home, "runs")
	elsewhere = filepath.Join(home, "elsewhere")
	for _, dir := range []string{filepath.Join(backups, "2026"), output, elsewhere} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			t.Fatal(err)
		}
	}
	return backups, output, elsewhere
}

func TestValidatePath_BackupLocations(t *testing.T) {
	backups, output, elsewhere := backupLayout(t)
	both := []string{backups, output}

	tests := []struct {
		name    string
		path    string
		allowed []string
		errPart string
	}{
		{"snapshot in backups", filepath.Join(backups, snapshot), both, ""},
		{"snapshot in dated subdir", filepath.Join(backups, "2026", snapshot), both, ""},
		{"snapshot not yet written in new subdir", filepath.Join(backups, "2027", "q1", snapshot), both, ""},
		{"backups dir itself", backups, both, ""},
		{"output dir export", filepath.Join(output, "history.json.gz"), both, ""},
		{"doubled separators", backups + string(os.PathSeparator) + string(os.PathSeparator) + snapshot, both, ""},
		{"output dir not configured", filepath.Join(output, "history.json.gz"), []string{backups}, "outside allowed directories"},
		{"sibling directory", filepath.Join(elsewhere, snapshot), both, "outside allowed directories"},
		{"climbs out of backups", filepath.Join(backups, "..", "config.yaml"), both, "outside allowed directories"},
		{"climbs out from subdir", filepath.Join(backups, "2026", "..", "..", "..", "elsewhere", snapshot), both, "outside allowed directories"},
		{"prefix lookalike", backups + "-old" + string(os.PathSeparator) + snapshot, both, "outside allowed directories"},
		{"null byte", filepath.Join(backups, "episim\x00.json.gz"), both, "null byte"},
		{"empty path", "", both, "empty"},
		{"nothing allowed", filepath.Join(backups, snapshot), nil, "no allowed directories"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path, tt.allowed)
			if tt.errPart == "" {
				if err != nil {
					t.Errorf("ValidatePath(%s) = %v, want nil", RedactPath(tt.path), err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("ValidatePath(%s) = %v, want error containing %q", RedactPath(tt.path), err, tt.errPart)
			}
		})
	}
}

func TestValidatePath_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	backups, output, elsewhere := backupLayout(t)

	links := map[string]string{
		"to-elsewhere": elsewhere,
		"to-output":    output,
		"to-subdir":    filepath.Join(backups, "2026"),
	}
	for name, target := range links {
		if err := os.Symlink(target, filepath.Join(backups, name)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		link    string
		allowed []string
		ok      bool
	}{
		{"to-subdir", []string{backups}, true},
		{"to-elsewhere", []string{backups, output}, false},
		{"to-output", []string{backups}, false},
		{"to-output", []string{backups, output}, true},
	}
	for _, tt := range tests {
		path := filepath.Join(backups, tt.link, snapshot)
		err := ValidatePath(path, tt.allowed)
		if tt.ok && err != nil {
			t.Errorf("%s with %d allowed dirs: %v", tt.link, len(tt.allowed), err)
		}
		if !tt.ok && (err == nil || !strings.Contains(err.Error(), "outside allowed directories")) {
			t.Errorf("%s with %d allowed dirs = %v, want rejection", tt.link, len(tt.allowed), err)
		}
	}
}

func TestRedactPath(t *testing.T) {
	tests := map[string]string{
		"":                                      "",
		snapshot:                                snapshot,
		"/" + snapshot:                          snapshot,
		"/home/ana/.episim/episim.db":           ".../.episim/episim.db",
		"/home/ana/.episim/backups/" + snapshot: ".../backups/" + snapshot,
		"runs/latest.arrow":                     ".../runs/latest.arrow",
		"/home/ana/.episim/":                    ".../ana/.episim",
	}
	for in, want := range tests {
		if got := RedactPath(in); got != want {
			t.Errorf("RedactPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAllowedBackupDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
	output := t.TempDir()

	dirs, err := AllowedBackupDirs("", output, "")
	if err != nil {
		t.Fatalf("AllowedBackupDirs: %v", err)
	}
	want := []string{filepath.Join(home, ".episim", "backups"), output}
	if strings.Join(dirs, "|") != strings.Join(want, "|") {
		t.Fatalf("dirs = %v, want %v", dirs, want)
	}
	if err := ValidatePath(filepath.Join(want[0], snapshot), dirs); err != nil {
		t.Errorf("default backup path rejected: %v", err)
	}
	if err := ValidatePath(filepath.Join(home, ".episim", "episim.db"), dirs); !errors.Is(err, ErrOutsideAllowed) {
		t.Errorf("history database outside backups = %v, want ErrOutsideAllowed", err)
	}

	if err := ValidateBackupPath(filepath.Join(output, snapshot), output); err != nil {
		t.Errorf("ValidateBackupPath in output dir: %v", err)
	}
	if err := ValidateBackupPath(filepath.Join(output, snapshot)); !errors.Is(err, ErrOutsideAllowed) {
		t.Errorf("ValidateBackupPath without output dir = %v, want ErrOutsideAllowed", err)
	}
}
