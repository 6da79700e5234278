package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWithinDir(t *testing.T) {
	tmp := t.TempDir()
	safe := filepath.Join(tmp, "plots")
	outside := filepath.Join(tmp, "outside")
	for _, d := range []string{safe, outside} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("MkdirAll failed: %v", err)
		}
	}
	if err := os.Symlink(outside, filepath.Join(safe, "link")); err != nil {
		t.Fatalf("Symlink failed: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"directory itself", safe, false},
		{"new nested file", filepath.Join(safe, "run", "20260101_000000", "speed.png"), false},
		{"dot dot escape", filepath.Join(safe, "..", "outside", "x.png"), true},
		{"sibling", outside, true},
		{"through symlink", filepath.Join(safe, "link", "x.png"), true},
		{"new file through symlink", filepath.Join(safe, "link", "new", "x.png"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WithinDir(tt.path, safe)
			if (err != nil) != tt.wantErr {
				t.Errorf("WithinDir(%s) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}

	if err := WithinDir(safe, filepath.Join(tmp, "missing")); err == nil {
		t.Error("expected error for a missing base directory")
	}
}

func TestValidateOutputPath(t *testing.T) {
	if err := ValidateOutputPath(filepath.Join(t.TempDir(), "plots")); err != nil {
		t.Errorf("temp dir rejected: %v", err)
	}
	if err := ValidateOutputPath("plots"); err != nil {
		t.Errorf("relative path rejected: %v", err)
	}
	if err := ValidateOutputPath("/proc/planner-plots"); err == nil {
		t.Error("expected /proc to be rejected")
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"planner.db", "planner.db"},
		{"pcap 10.0.0.2:50123->10.0.0.1:4567", "pcap_10.0.0.2_50123-_10.0.0.1_4567"},
		{"../../etc/passwd", "etc_passwd"},
		{"", "unknown"},
		{"///", "unknown"},
		{"run id", "run_id"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
