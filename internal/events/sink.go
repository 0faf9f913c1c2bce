package events

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// Sink runs a configured hook script, once per event, fully detached.
type Sink struct {
	hookPath string
	log      *zap.Logger

	mu      sync.Mutex
	running int // live hook processes, for the reaper
	done    chan struct{}
}

// NewSink builds a Sink. hookPath == "" disables publishing entirely
// (Publish becomes a no-op).
func NewSink(hookPath string, log *zap.Logger) *Sink {
	return &Sink{hookPath: hookPath, log: log}
}

// Publish runs the hook script for kind with fields in its environment.
// It never blocks past process start: the child is detached into its own
// process group and reaped by a background goroutine, so a hook that
// hangs or never exits cannot stall playback (spec.md §6).
func (s *Sink) Publish(kind Kind, fields Fields) {
	if s.hookPath == "" {
		return
	}

	cmd := exec.Command(s.hookPath)
	cmd.Env = append(os.Environ(), buildEnv(kind, fields)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		s.log.Warn("hook script failed to start", zap.String("event", string(kind)), zap.Error(err))
		return
	}

	s.mu.Lock()
	s.running++
	s.mu.Unlock()

	go func() {
		// Wait reaps the child regardless of how long it runs; pleezer's
		// own goroutines never wait on this one, so a stuck hook only
		// leaks a goroutine+zombie-avoidance wait, never blocks playback.
		if err := cmd.Wait(); err != nil {
			s.log.Debug("hook script exited non-zero", zap.String("event", string(kind)), zap.Error(err))
		}
		s.mu.Lock()
		s.running--
		s.mu.Unlock()
	}()
}

// RunningCount reports how many hook processes are still being reaped.
// Exposed for tests and for internal/metrics.
func (s *Sink) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// buildEnv renders fields into the EVENT=... KEY=VALUE environment pairs
// of spec.md §6. Values are emitted raw, unescaped: the hook script is
// responsible for its own escaping (spec.md §4.8 "Rules").
func buildEnv(kind Kind, f Fields) []string {
	env := []string{"EVENT=" + string(kind)}
	add := func(key, val string) {
		if val != "" {
			env = append(env, key+"="+val)
		}
	}
	add("TRACK_TYPE", f.TrackType)
	add("TRACK_ID", f.TrackID)
	add("TITLE", f.Title)
	add("ARTIST", f.Artist)
	add("ALBUM_TITLE", f.AlbumTitle)
	add("COVER_ID", f.CoverID)
	if f.DurationMs != nil {
		env = append(env, fmt.Sprintf("DURATION=%s", strconv.Itoa(*f.DurationMs)))
	}
	add("FORMAT", f.Format)
	add("DECODER", f.Decoder)
	add("USER_ID", f.UserID)
	add("USER_NAME", f.UserName)
	return env
}
