package version

import (
	"strings"
	"testing"
)

func TestFull(t *testing.T) {
	if Version == "" || Commit == "" {
		t.Fatalf("init should populate Version and Commit, got %q / %q", Version, Commit)
	}
	full := Full()
	if !strings.HasPrefix(full, Version) {
		t.Errorf("Full() = %q, want prefix %q", full, Version)
	}
	if !strings.Contains(full, "commit: "+Commit) {
		t.Errorf("Full() = %q, want commit %q", full, Commit)
	}
}
