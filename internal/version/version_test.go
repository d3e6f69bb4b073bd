package version

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"
)

func TestCurrentPrefersBuildVersion(t *testing.T) {
	old := buildVersion
	buildVersion = "v1.2.3+dirty"
	t.Cleanup(func() { buildVersion = old })

	if got := Current(); got != "v1.2.3" {
		t.Fatalf("expected build version without dirty suffix, got %q", got)
	}
	if got := CurrentWithDirty(); got != "v1.2.3+dirty" {
		t.Fatalf("expected dirty build version, got %q", got)
	}
}

func TestPseudoFromBuildInfo(t *testing.T) {
	ts := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	info := &debug.BuildInfo{
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "1234567890abcdef"},
			{Key: "vcs.time", Value: ts.Format(time.RFC3339)},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	if got := pseudoFromBuildInfo(info, true); got != "v0.0.0-20250102030405-1234567890ab+dirty" {
		t.Fatalf("unexpected dirty pseudo version: %q", got)
	}
	if got := pseudoFromBuildInfo(info, false); got != "v0.0.0-20250102030405-1234567890ab" {
		t.Fatalf("unexpected clean pseudo version: %q", got)
	}
	if pseudoFromBuildInfo(nil, true) != "" {
		t.Fatalf("expected empty version for nil build info")
	}
	if pseudoFromBuildInfo(&debug.BuildInfo{}, true) != "" {
		t.Fatalf("expected empty version without vcs settings")
	}
}

func TestInfoString(t *testing.T) {
	info := Info{Version: "v1.0.0", Module: "pkt.systems/tmplay", Go: "go1.25.2", Revision: "abc"}
	got := info.String()
	if !strings.HasPrefix(got, "tmplay v1.0.0 (pkt.systems/tmplay, go1.25.2)") || !strings.HasSuffix(got, "rev abc") {
		t.Fatalf("unexpected info string %q", got)
	}
}
