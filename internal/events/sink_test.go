package events

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func writeHookScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hook.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("writing hook script: %v", err)
	}
	return path
}

func waitForRunningCount(t *testing.T, s *Sink, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.RunningCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("RunningCount() never reached %d, stuck at %d", want, s.RunningCount())
}

func TestPublishWithNoHookPathIsNoOp(t *testing.T) {
	s := NewSink("", zap.NewNop())
	s.Publish(Connected, Fields{})
	if s.RunningCount() != 0 {
		t.Errorf("RunningCount() = %d, want 0 for a disabled sink", s.RunningCount())
	}
}

func TestPublishRunsDetachedAndIsReaped(t *testing.T) {
	out := filepath.Join(t.TempDir(), "env.txt")
	script := writeHookScript(t, "env > "+out)

	s := NewSink(script, zap.NewNop())
	dur := 210000
	s.Publish(TrackChanged, Fields{
		TrackType: "song", TrackID: "123", Title: "Song", Artist: "Artist",
		DurationMs: &dur,
	})

	waitForRunningCount(t, s, 0)

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading hook output: %v", err)
	}
	content := string(data)
	for _, want := range []string{"EVENT=track_changed", "TRACK_ID=123", "TITLE=Song", "DURATION=210000"} {
		if !contains(content, want) {
			t.Errorf("hook environment missing %q; got:\n%s", want, content)
		}
	}
}

func TestPublishOmitsZeroValueFields(t *testing.T) {
	out := filepath.Join(t.TempDir(), "env.txt")
	script := writeHookScript(t, "env > "+out)

	s := NewSink(script, zap.NewNop())
	s.Publish(Connected, Fields{})
	waitForRunningCount(t, s, 0)

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading hook output: %v", err)
	}
	if contains(string(data), "TITLE=") {
		t.Error("hook environment should omit TITLE when empty")
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
