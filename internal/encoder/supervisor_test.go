package encoder

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hls-packager/internal/platform/logger"
)

func writeFakeEncoder(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte(body), 0755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	return path
}

func waitDone(t *testing.T, p *Process) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not finish in time")
	}
}

func TestSupervisor_Spawn_success(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "args.txt")
	bin := writeFakeEncoder(t, "#!/bin/sh\necho \"$@\" > \""+out+"\"\n")

	exits := make(chan error, 1)
	p, err := NewSupervisor(bin, logger.Discard()).Spawn([]string{"-i", "in.mkv", "out.m3u8"}, func(err error) {
		exits <- err
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if p.PID <= 0 {
		t.Errorf("expected a pid, got %d", p.PID)
	}

	waitDone(t, p)
	if err := p.Wait(); err != nil {
		t.Errorf("Wait: %v", err)
	}
	if err := <-exits; err != nil {
		t.Errorf("onExit got %v, want nil", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	if strings.TrimSpace(string(got)) != "-i in.mkv out.m3u8" {
		t.Errorf("encoder received %q", got)
	}
}

func TestSupervisor_Spawn_nonzero_exit_still_reports(t *testing.T) {
	bin := writeFakeEncoder(t, "#!/bin/sh\necho 'Invalid data found when processing input' >&2\nexit 3\n")

	exits := make(chan error, 1)
	p, err := NewSupervisor(bin, logger.Discard()).Spawn(nil, func(err error) { exits <- err })
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	waitDone(t, p)

	exitErr := <-exits
	var ee *exec.ExitError
	if !errors.As(exitErr, &ee) || ee.ExitCode() != 3 {
		t.Errorf("onExit got %v, want exit status 3", exitErr)
	}
}

func TestSupervisor_Spawn_returns_before_exit(t *testing.T) {
	bin := writeFakeEncoder(t, "#!/bin/sh\nsleep 1\n")

	called := make(chan struct{})
	start := time.Now()
	p, err := NewSupervisor(bin, logger.Discard()).Spawn(nil, func(error) { close(called) })
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("Spawn blocked for %v", time.Since(start))
	}
	select {
	case <-called:
		t.Fatal("onExit called before the process finished")
	default:
	}
	waitDone(t, p)
	select {
	case <-called:
	default:
		t.Error("onExit should run before Done is closed")
	}
}

func TestSupervisor_Spawn_missing_binary(t *testing.T) {
	called := false
	_, err := NewSupervisor(filepath.Join(t.TempDir(), "nope"), logger.Discard()).Spawn(nil, func(error) { called = true })
	if !errors.Is(err, ErrSpawn) {
		t.Fatalf("expected ErrSpawn, got %v", err)
	}
	if called {
		t.Error("onExit must not be called when spawn fails")
	}
}

func TestBoundedBuffer_truncates(t *testing.T) {
	b := &boundedBuffer{limit: 4}
	n, _ := b.Write([]byte("abcdef"))
	if n != 6 {
		t.Errorf("Write should report full length, got %d", n)
	}
	_, _ = b.Write([]byte("gh"))
	if b.String() != "abcd" {
		t.Errorf("buffer = %q, want abcd", b.String())
	}
}
