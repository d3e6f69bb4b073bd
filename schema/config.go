package schema

import (
	"errors"
	"fmt"
)

// ServiceConfig defines defaults and limits for the core service.
type ServiceConfig struct {
	// SpeedMS is the initial playback interval for new sessions.
	SpeedMS int
	// VisibleCells is the default viewport width.
	VisibleCells int
	// NoticeMaxLines bounds the per-session notice buffer.
	NoticeMaxLines int
	// DefaultSource is loaded into new sessions.
	DefaultSource string
	// DefaultTape is the initial tape input for new sessions.
	DefaultTape string
}

const (
	// DefaultSpeedMS is the default playback interval.
	DefaultSpeedMS = 500
	// MinSpeedPresetMS and MaxSpeedPresetMS bound the speed presets offered to users.
	MinSpeedPresetMS = 100
	MaxSpeedPresetMS = 1000
	// SpeedPresetStepMS is the distance between speed presets.
	SpeedPresetStepMS = 100
	// DefaultVisibleCells is the default viewport width.
	DefaultVisibleCells = 15
	// MaxVisibleCells bounds the viewport width a caller may request.
	MaxVisibleCells = 1024
	// DefaultNoticeMaxLines is the default notice buffer limit.
	DefaultNoticeMaxLines = 200
	// DefaultTapeInput is the tape used when none is provided.
	DefaultTapeInput = "11011"
)

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if cfg.SpeedMS == 0 {
		cfg.SpeedMS = DefaultSpeedMS
	}
	if cfg.VisibleCells == 0 {
		cfg.VisibleCells = DefaultVisibleCells
	}
	if cfg.NoticeMaxLines <= 0 {
		cfg.NoticeMaxLines = DefaultNoticeMaxLines
	}
	if cfg.DefaultTape == "" {
		cfg.DefaultTape = DefaultTapeInput
	}
	if cfg.SpeedMS < 0 {
		return ServiceConfig{}, ErrInvalidSpeed
	}
	if cfg.VisibleCells < 0 {
		return ServiceConfig{}, errors.New("visible cells must not be negative")
	}
	if cfg.VisibleCells > MaxVisibleCells {
		return ServiceConfig{}, fmt.Errorf("visible cells must not exceed %d", MaxVisibleCells)
	}
	return cfg, nil
}

// SpeedPresets returns the playback speeds offered as presets, fastest first.
func SpeedPresets() []int {
	out := make([]int, 0, (MaxSpeedPresetMS-MinSpeedPresetMS)/SpeedPresetStepMS+1)
	for ms := MinSpeedPresetMS; ms <= MaxSpeedPresetMS; ms += SpeedPresetStepMS {
		out = append(out, ms)
	}
	return out
}

// NextSpeedPreset returns the preset adjacent to current in the given direction.
// A positive dir slows playback down; a negative dir speeds it up.
func NextSpeedPreset(current, dir int) int {
	if dir > 0 {
		next := (current/SpeedPresetStepMS + 1) * SpeedPresetStepMS
		if next > MaxSpeedPresetMS {
			next = MaxSpeedPresetMS
		}
		if next < current {
			return current
		}
		return next
	}
	if dir < 0 {
		next := ((current - 1) / SpeedPresetStepMS) * SpeedPresetStepMS
		if next < MinSpeedPresetMS {
			next = MinSpeedPresetMS
		}
		if next > current {
			return current
		}
		return next
	}
	return current
}
