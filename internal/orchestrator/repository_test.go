package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestInMemoryRepository_GetOrStart(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	t.Run("new_id_runs_start", func(t *testing.T) {
		calls := 0
		state, err := repo.GetOrStart(ctx, "a", "/media/a.mkv", func() error {
			calls++
			return nil
		})
		if err != nil {
			t.Fatalf("GetOrStart: %v", err)
		}
		if state != StateInProgress {
			t.Errorf("state = %q, want in_progress", state)
		}
		if calls != 1 {
			t.Errorf("start called %d times, want 1", calls)
		}
	})

	t.Run("known_id_skips_start", func(t *testing.T) {
		state, err := repo.GetOrStart(ctx, "a", "/media/other.mkv", func() error {
			t.Error("start must not run for a known id")
			return nil
		})
		if err != nil || state != StateInProgress {
			t.Errorf("got (%q, %v), want in_progress", state, err)
		}
		job, _ := repo.Get("a")
		if job.Path != "/media/a.mkv" {
			t.Errorf("path changed to %q", job.Path)
		}
	})

	t.Run("done_is_returned_without_start", func(t *testing.T) {
		if !repo.MarkDone("a", nil) {
			t.Fatal("MarkDone: id not found")
		}
		state, err := repo.GetOrStart(ctx, "a", "/media/a.mkv", func() error {
			t.Error("start must not run for a done id")
			return nil
		})
		if err != nil || state != StateDone {
			t.Errorf("got (%q, %v), want done", state, err)
		}
	})
}

func TestInMemoryRepository_GetOrStart_concurrent_callers_start_once(t *testing.T) {
	repo := NewInMemoryRepository()
	release := make(chan struct{})
	var calls atomic.Int32

	start := func() error {
		calls.Add(1)
		<-release
		return nil
	}

	const callers = 16
	states := make([]JobState, callers)
	var g errgroup.Group
	for i := range callers {
		g.Go(func() error {
			s, err := repo.GetOrStart(context.Background(), "movie", "/m.mkv", start)
			states[i] = s
			return err
		})
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	if err := g.Wait(); err != nil {
		t.Fatalf("GetOrStart: %v", err)
	}

	if n := calls.Load(); n != 1 {
		t.Errorf("start called %d times, want 1", n)
	}
	for i, s := range states {
		if s != StateInProgress {
			t.Errorf("caller %d got %q, want in_progress", i, s)
		}
	}
}

func TestInMemoryRepository_GetOrStart_distinct_ids_run_in_parallel(t *testing.T) {
	repo := NewInMemoryRepository()
	var wg sync.WaitGroup
	wg.Add(2)
	both := make(chan struct{})
	go func() { wg.Wait(); close(both) }()

	start := func() error {
		wg.Done()
		select {
		case <-both:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("other id never started")
		}
	}

	var g errgroup.Group
	for _, id := range []JobID{"x", "y"} {
		g.Go(func() error {
			_, err := repo.GetOrStart(context.Background(), id, "/in.mkv", start)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestInMemoryRepository_GetOrStart_failure_records_nothing(t *testing.T) {
	repo := NewInMemoryRepository()
	boom := errors.New("probe failed")

	_, err := repo.GetOrStart(context.Background(), "bad", "/bad.mkv", func() error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected start error, got %v", err)
	}
	if _, ok := repo.Get("bad"); ok {
		t.Error("failed start must not leave a job")
	}
	if in, done := repo.Counts(); in != 0 || done != 0 {
		t.Errorf("Counts = (%d, %d), want (0, 0)", in, done)
	}

	state, err := repo.GetOrStart(context.Background(), "bad", "/bad.mkv", func() error { return nil })
	if err != nil || state != StateInProgress {
		t.Errorf("retry got (%q, %v), want in_progress", state, err)
	}
}

func TestInMemoryRepository_GetOrStart_waiters_share_failure(t *testing.T) {
	repo := NewInMemoryRepository()
	boom := errors.New("spawn failed")
	entered := make(chan struct{})
	release := make(chan struct{})

	winner := make(chan error, 1)
	go func() {
		_, err := repo.GetOrStart(context.Background(), "v", "/v.mkv", func() error {
			close(entered)
			<-release
			return boom
		})
		winner <- err
	}()
	<-entered

	waiter := make(chan error, 1)
	go func() {
		_, err := repo.GetOrStart(context.Background(), "v", "/v.mkv", func() error {
			t.Error("waiter must not run start")
			return nil
		})
		waiter <- err
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)
	if err := <-winner; !errors.Is(err, boom) {
		t.Errorf("winner got %v", err)
	}
	if err := <-waiter; !errors.Is(err, boom) {
		t.Errorf("waiter got %v", err)
	}
}

func TestInMemoryRepository_GetOrStart_waiter_honours_context(t *testing.T) {
	repo := NewInMemoryRepository()
	entered := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	go func() {
		_, _ = repo.GetOrStart(context.Background(), "slow", "/s.mkv", func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := repo.GetOrStart(ctx, "slow", "/s.mkv", func() error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestInMemoryRepository_GetOrStart_panic_releases_waiters(t *testing.T) {
	repo := NewInMemoryRepository()

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_, _ = repo.GetOrStart(context.Background(), "p", "/p.mkv", func() error { panic("boom") })
	}()

	if _, ok := repo.Get("p"); ok {
		t.Error("panicked start must not leave a job")
	}
	state, err := repo.GetOrStart(context.Background(), "p", "/p.mkv", func() error { return nil })
	if err != nil || state != StateInProgress {
		t.Errorf("retry got (%q, %v)", state, err)
	}
}

func TestInMemoryRepository_MarkDone(t *testing.T) {
	repo := NewInMemoryRepository()

	t.Run("unknown_id", func(t *testing.T) {
		if repo.MarkDone("missing", nil) {
			t.Error("MarkDone should report false for an unknown id")
		}
	})

	t.Run("records_exit_error", func(t *testing.T) {
		_, _ = repo.GetOrStart(context.Background(), "e", "/e.mkv", func() error { return nil })
		repo.MarkDone("e", errors.New("exit status 1"))

		job, ok := repo.Get("e")
		if !ok {
			t.Fatal("Get: not found")
		}
		if job.State != StateDone || job.ExitError != "exit status 1" || job.FinishedAt.IsZero() {
			t.Errorf("unexpected job: %+v", job)
		}
	})

	t.Run("done_during_start_is_kept", func(t *testing.T) {
		state, err := repo.GetOrStart(context.Background(), "fast", "/f.mkv", func() error {
			// The encoder exited before start returned.
			repo.MarkDone("fast", nil)
			return nil
		})
		if err != nil || state != StateDone {
			t.Errorf("got (%q, %v), want done", state, err)
		}
	})
}

func TestInMemoryRepository_Get_hides_pending(t *testing.T) {
	repo := NewInMemoryRepository()
	entered := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		_, _ = repo.GetOrStart(context.Background(), "pend", "/p.mkv", func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	if _, ok := repo.Get("pend"); ok {
		t.Error("pending job should not be visible")
	}
	if in, _ := repo.Counts(); in != 0 {
		t.Errorf("pending job counted as in progress")
	}

	close(release)
	<-finished
	job, ok := repo.Get("pend")
	if !ok || job.State != StateInProgress || job.StartedAt.IsZero() {
		t.Errorf("unexpected job after start: %+v ok=%v", job, ok)
	}
}

func TestInMemoryRepository_Counts(t *testing.T) {
	repo := NewInMemoryRepository()
	for _, id := range []JobID{"a", "b", "c"} {
		_, _ = repo.GetOrStart(context.Background(), id, "/x.mkv", func() error { return nil })
	}
	repo.MarkDone("b", nil)

	in, done := repo.Counts()
	if in != 2 || done != 1 {
		t.Errorf("Counts = (%d, %d), want (2, 1)", in, done)
	}
}
