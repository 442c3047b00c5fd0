package logging

import "testing"

func TestLevelString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		level Level
		want  string
	}{
		{Quiet, "quiet"},
		{Panic, "panic"},
		{Fatal, "fatal"},
		{Error, "error"},
		{Warning, "warning"},
		{Info, "info"},
		{Verbose, "verbose"},
		{Debug, "debug"},
		{Level(99), "unknown"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
			}
		})
	}
}

func TestWithPreservesLevel(t *testing.T) {
	t.Parallel()
	l := New(Verbose)
	child := l.With("component", "test")
	if child.level != Verbose {
		t.Errorf("With() child level = %v, want %v", child.level, Verbose)
	}
}

// Verbosef is the one level-gated helper not handled directly by slog's
// own four-level scale (spec.md's Verbose sits between slog's Info and
// Debug), so it's worth confirming the gate actually suppresses below
// the configured level. There's no public way to capture slog output
// through *Logger, so this only checks it doesn't panic at either side
// of the gate.
func TestVerbosefGate(t *testing.T) {
	t.Parallel()
	quiet := New(Info)
	quiet.Verbosef("should be suppressed: %d", 1)

	verbose := New(Verbose)
	verbose.Verbosef("should be emitted: %d", 1)
}
