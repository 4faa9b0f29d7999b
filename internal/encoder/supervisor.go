// Package encoder builds ffmpeg HLS packaging commands and supervises the
// resulting processes.
package encoder

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ErrSpawn is returned when the encoder process cannot be started.
var ErrSpawn = errors.New("encoder spawn failed")

const maxStderrBytes = 8 << 10

// Supervisor starts encoder processes and watches them until they exit.
type Supervisor struct {
	binary string
	log    *slog.Logger
}

// NewSupervisor returns a Supervisor running binary, or "ffmpeg" from PATH
// when binary is empty.
func NewSupervisor(binary string, log *slog.Logger) *Supervisor {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffmpeg"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{binary: bin, log: log}
}

// Process is a handle on a running encoder.
type Process struct {
	PID       int
	Args      []string
	StartedAt time.Time

	done chan struct{}
	err  error
}

// NewProcess returns a handle that is already finished with err. It is meant
// for Spawner implementations that do not run a real process.
func NewProcess(pid int, args []string, err error) *Process {
	p := &Process{PID: pid, Args: args, StartedAt: time.Now().UTC(), done: make(chan struct{}), err: err}
	close(p.done)
	return p
}

// Done is closed once the process has exited and its exit callback returned.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process has exited and returns its exit error.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Spawn starts the encoder with args and returns without waiting for it.
// A background goroutine waits for the exit and then calls onExit with the
// exit error, whatever the exit code. onExit is not called when Spawn fails.
// The process is not tied to any request context and always runs to
// completion.
func (s *Supervisor) Spawn(args []string, onExit func(error)) (*Process, error) {
	cmd := exec.Command(s.binary, args...)
	stderr := &boundedBuffer{limit: maxStderrBytes}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawn, s.binary, err)
	}

	p := &Process{
		PID:       cmd.Process.Pid,
		Args:      append([]string(nil), args...),
		StartedAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}

	s.log.Debug("encoder started", slog.Int("pid", p.PID), slog.String("binary", s.binary))

	go func() {
		err := cmd.Wait()
		p.err = err

		attrs := []any{
			slog.Int("pid", p.PID),
			slog.Int("exit_code", cmd.ProcessState.ExitCode()),
			slog.Int("duration_ms", int(time.Since(p.StartedAt).Milliseconds())),
		}
		if out := strings.TrimSpace(stderr.String()); out != "" {
			attrs = append(attrs, slog.String("stderr", out))
		}
		if err != nil {
			s.log.Warn("encoder exited with error", append(attrs, slog.String("error", err.Error()))...)
		} else {
			s.log.Info("encoder finished", attrs...)
		}

		if onExit != nil {
			onExit(err)
		}
		close(p.done)
	}()

	return p, nil
}

// boundedBuffer keeps the first limit bytes written to it and discards the
// rest.
type boundedBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - len(b.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		b.buf = append(b.buf, p[:room]...)
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
