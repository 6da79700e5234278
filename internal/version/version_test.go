package version

import "testing"

func TestString(t *testing.T) {
	oldV, oldSHA, oldTime := Version, GitSHA, BuildTime
	t.Cleanup(func() { Version, GitSHA, BuildTime = oldV, oldSHA, oldTime })

	if got := String(); got != "dev (unknown, built unknown)" {
		t.Errorf("default String() = %q", got)
	}

	Version, GitSHA, BuildTime = "v0.3.0", "0123456789abcdef0123", "2026-03-14T12:00:00Z"
	if got, want := String(), "v0.3.0 (0123456789ab, built 2026-03-14T12:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if info := Get(); info.GitSHA != GitSHA || info.Version != "v0.3.0" {
		t.Errorf("Get() = %+v", info)
	}
}
