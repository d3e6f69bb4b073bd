package schema

import (
	"strings"
	"unicode"
)

// ValidateSessionID validates a session identifier.
// Allowed characters: a-z, 0-9, '-'.
func ValidateSessionID(id SessionID) error {
	if id == "" || len(id) > 64 {
		return ErrInvalidSession
	}
	for _, r := range string(id) {
		if r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			continue
		}
		return ErrInvalidSession
	}
	return nil
}

// NormalizeExampleName validates and normalizes an example name.
func NormalizeExampleName(name string) (ExampleName, error) {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	trimmed = strings.TrimSuffix(trimmed, ".tm")
	if trimmed == "" {
		return "", ErrExampleNotFound
	}
	for _, r := range trimmed {
		if r == '-' || r == '_' || unicode.IsDigit(r) || (r >= 'a' && r <= 'z') {
			continue
		}
		return "", ErrExampleNotFound
	}
	return ExampleName(trimmed), nil
}

// NormalizeTapeInput strips surrounding whitespace and maps interior
// whitespace to the blank symbol so every rune is one tape cell.
func NormalizeTapeInput(tape string) string {
	trimmed := strings.TrimSpace(tape)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return BlankSymbol
		}
		return r
	}, trimmed)
}

// NormalizePlaybackAction validates a playback action name.
func NormalizePlaybackAction(value string) (PlaybackAction, error) {
	action := PlaybackAction(strings.ToLower(strings.TrimSpace(value)))
	switch action {
	case ActionForward, ActionBackward, ActionToggle, ActionPlay, ActionPause,
		ActionReset, ActionFirst, ActionLast, ActionSeek:
		return action, nil
	case "next", "step":
		return ActionForward, nil
	case "prev", "back":
		return ActionBackward, nil
	default:
		return "", ErrInvalidAction
	}
}
