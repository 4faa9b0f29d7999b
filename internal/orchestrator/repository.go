package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"
)

// StartFunc performs the expensive part of starting a job (probe, manifests,
// encoder spawn). It runs at most once per job id that ends up registered.
type StartFunc func() error

// Repository defines the concurrency-safe contract of the job registry.
type Repository interface {
	// GetOrStart returns the state of id, starting it with start when id is
	// unknown. Concurrent callers racing on a new id cause exactly one call
	// of start; the others wait for its outcome and share it. If start
	// fails, no job is recorded and the error is returned.
	GetOrStart(ctx context.Context, id JobID, path string, start StartFunc) (JobState, error)

	// MarkDone moves id to StateDone and records the encoder's exit error.
	// Done is terminal. It reports whether id was known.
	MarkDone(id JobID, exitErr error) bool

	// Get returns a copy of the job record for id. Jobs whose start function
	// is still running are not visible.
	Get(id JobID) (Job, bool)

	// Counts returns the number of jobs per state. Used for metrics.
	Counts() (inProgress, done int)
}

// errStartAborted is reported to waiters when a start function panicked.
var errStartAborted = errors.New("job start aborted")

// InMemoryRepository is a concurrency-safe in-memory implementation of
// Repository. It never evicts jobs.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
}

// NewInMemoryRepository constructs a new repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store}
}

// GetOrStart implements Repository.GetOrStart.
//
// The lock is held once, only to decide whether id exists and, if not, to
// install a pending record. start runs outside the lock; callers that find
// the pending record block until it resolves.
func (r *InMemoryRepository) GetOrStart(ctx context.Context, id JobID, path string, start StartFunc) (JobState, error) {
	r.mu.Lock()
	job, exists := r.store.GetJob(id)
	if !exists {
		job = &Job{
			ID:      id,
			Path:    path,
			pending: true,
			ready:   make(chan struct{}),
		}
		r.store.SetJob(job)
	}
	r.mu.Unlock()

	if exists {
		return r.await(ctx, job)
	}
	return r.runStart(job, start)
}

// runStart calls start and publishes its outcome. The deferred block also
// runs when start panics, so waiters are never left blocked.
func (r *InMemoryRepository) runStart(job *Job, start StartFunc) (state JobState, err error) {
	err = errStartAborted
	defer func() {
		r.mu.Lock()
		job.pending = false
		if err != nil {
			job.startErr = err
			r.store.DeleteJob(job.ID)
		} else {
			job.StartedAt = time.Now().UTC()
			// The encoder may already have exited and marked the job Done.
			if job.State != StateDone {
				job.State = StateInProgress
			}
		}
		state = job.State
		r.mu.Unlock()
		close(job.ready)
	}()

	err = start()
	return "", err
}

func (r *InMemoryRepository) await(ctx context.Context, job *Job) (JobState, error) {
	select {
	case <-job.ready:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if job.startErr != nil {
		return "", job.startErr
	}
	return job.State, nil
}

// MarkDone implements Repository.MarkDone.
func (r *InMemoryRepository) MarkDone(id JobID, exitErr error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.store.GetJob(id)
	if !exists {
		return false
	}

	job.State = StateDone
	job.FinishedAt = time.Now().UTC()
	if exitErr != nil {
		job.ExitError = exitErr.Error()
	}
	return true
}

// Get implements Repository.Get.
func (r *InMemoryRepository) Get(id JobID) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, exists := r.store.GetJob(id)
	if !exists || job.pending {
		return Job{}, false
	}
	return snapshotLocked(job), true
}

// Counts implements Repository.Counts.
func (r *InMemoryRepository) Counts() (inProgress, done int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.store.ListJobIDs() {
		job, ok := r.store.GetJob(id)
		if !ok || job.pending {
			continue
		}
		switch job.State {
		case StateInProgress:
			inProgress++
		case StateDone:
			done++
		}
	}
	return inProgress, done
}

// snapshotLocked copies the exported fields of job.
// Caller must hold r.mu.
func snapshotLocked(job *Job) Job {
	return Job{
		ID:         job.ID,
		Path:       job.Path,
		State:      job.State,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
		ExitError:  job.ExitError,
	}
}
