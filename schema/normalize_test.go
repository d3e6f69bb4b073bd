package schema

import "testing"

func TestValidateSessionID(t *testing.T) {
	cases := []struct {
		name  string
		id    SessionID
		valid bool
	}{
		{"hex", "0a1b2c3d", true},
		{"with-dash", "tape-1", true},
		{"empty", "", false},
		{"uppercase", "ABC", false},
		{"space", "a b", false},
		{"symbol", "a/b", false},
	}
	for _, tc := range cases {
		err := ValidateSessionID(tc.id)
		if tc.valid && err != nil {
			t.Fatalf("case %q expected valid, got error: %v", tc.name, err)
		}
		if !tc.valid && err == nil {
			t.Fatalf("case %q expected error, got nil", tc.name)
		}
	}
}

func TestNormalizeExampleName(t *testing.T) {
	got, err := NormalizeExampleName(" Binary-Increment.tm ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "binary-increment" {
		t.Fatalf("expected binary-increment, got %q", got)
	}
	if _, err := NormalizeExampleName("../etc"); err == nil {
		t.Fatalf("expected error for path-like name")
	}
}

func TestNormalizeTapeInput(t *testing.T) {
	if got := NormalizeTapeInput("  1 01\t1 "); got != "1_01_1" {
		t.Fatalf("unexpected tape %q", got)
	}
	if got := NormalizeTapeInput(""); got != "" {
		t.Fatalf("expected empty tape, got %q", got)
	}
}

func TestNormalizePlaybackAction(t *testing.T) {
	cases := map[string]PlaybackAction{
		"forward": ActionForward,
		"NEXT":    ActionForward,
		"back":    ActionBackward,
		" seek ":  ActionSeek,
		"toggle":  ActionToggle,
	}
	for in, want := range cases {
		got, err := NormalizePlaybackAction(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got != want {
			t.Fatalf("%q: expected %q, got %q", in, want, got)
		}
	}
	if _, err := NormalizePlaybackAction("rewind"); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}

func TestNormalizeServiceConfigDefaults(t *testing.T) {
	cfg, err := NormalizeServiceConfig(ServiceConfig{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.SpeedMS != DefaultSpeedMS || cfg.VisibleCells != DefaultVisibleCells {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DefaultTape != "11011" {
		t.Fatalf("unexpected default tape %q", cfg.DefaultTape)
	}
	if _, err := NormalizeServiceConfig(ServiceConfig{SpeedMS: -5}); err == nil {
		t.Fatalf("expected error for negative speed")
	}
}

func TestSpeedPresets(t *testing.T) {
	presets := SpeedPresets()
	if len(presets) != 10 || presets[0] != 100 || presets[9] != 1000 {
		t.Fatalf("unexpected presets %v", presets)
	}
	cases := []struct {
		current, dir, want int
	}{
		{500, 1, 600},
		{500, -1, 400},
		{550, -1, 500},
		{1000, 1, 1000},
		{100, -1, 100},
		{50, -1, 50},
		{1500, 1, 1500},
	}
	for _, tc := range cases {
		if got := NextSpeedPreset(tc.current, tc.dir); got != tc.want {
			t.Fatalf("NextSpeedPreset(%d,%d)=%d want %d", tc.current, tc.dir, got, tc.want)
		}
	}
}
