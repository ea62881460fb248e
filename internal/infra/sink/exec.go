package sink

import (
	"bytes"
	"os/exec"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/sonicbox/internal/app/playback"
)

// URLPlaceholder is replaced by the stream URL in command arguments.
const URLPlaceholder = "{url}"

// ExecSettings configures an ExecSink.
type ExecSettings struct {
	Command string   `mapstructure:"command" default:"ffmpeg" validate:"required"`
	Args    []string `mapstructure:"args" default:"[\"-hide_banner\",\"-loglevel\",\"error\",\"-re\",\"-i\",\"{url}\",\"-f\",\"null\",\"-\"]" validate:"min=1"`
}

// ExecSink plays each track by running an external command, typically ffmpeg
// feeding the room's audio output. The process exit ends the track.
type ExecSink struct {
	command string
	args    []string

	mu      sync.Mutex
	current *run
}

// NewExecSink creates a new ExecSink.
func NewExecSink(settings ExecSettings) *ExecSink {
	return &ExecSink{
		command: settings.Command,
		args:    settings.Args,
	}
}

// IsStreaming reports whether a process is running for the room.
func (s *ExecSink) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// BeginStreaming starts the command for src.
func (s *ExecSink) BeginStreaming(src playback.Source, done playback.CompletionFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return playback.ErrAlreadyStreaming
	}

	args := make([]string, len(s.args))
	for i, a := range s.args {
		args[i] = strings.ReplaceAll(a, URLPlaceholder, src.URL)
	}

	cmd := exec.Command(s.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start %s", s.command)
	}

	r := &run{src: src, done: done}
	r.stop = func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
	s.current = r

	go func() {
		err := cmd.Wait()
		if err != nil {
			err = errors.Wrapf(err, "%s exited: %s", s.command, strings.TrimSpace(stderr.String()))
		}
		s.finish(r, err)
	}()

	zlog.Debug().Msgf("sink: process started: track=%s pid=%d", src.TrackID, cmd.Process.Pid)
	return nil
}

// ForceStop kills the running process. It is a no-op when idle.
// The completion reports no error.
func (s *ExecSink) ForceStop() {
	s.mu.Lock()
	r := s.current
	s.current = nil
	s.mu.Unlock()

	if r == nil {
		return
	}
	r.stop()
	r.complete(nil)
}

func (s *ExecSink) finish(r *run, err error) {
	s.mu.Lock()
	active := s.current == r
	if active {
		s.current = nil
	}
	s.mu.Unlock()

	// Force-stopped runs have already completed.
	if !active {
		return
	}

	if err != nil {
		zlog.Warn().Err(err).Msgf("sink: process failed: track=%s", r.src.TrackID)
	}
	r.complete(err)
}
