package orchestrator

// Store is the storage abstraction for job records.
// The Repository serializes all access to a Store under its own lock, so
// implementations need not be safe for concurrent use.
type Store interface {
	GetJob(id JobID) (*Job, bool)
	SetJob(j *Job)
	DeleteJob(id JobID)
	ListJobIDs() []JobID
}

// InMemoryStore is a map-backed Store. Records live for the lifetime of the
// process.
type InMemoryStore struct {
	jobs map[JobID]*Job
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		jobs: make(map[JobID]*Job),
	}
}

// GetJob implements Store.GetJob.
func (s *InMemoryStore) GetJob(id JobID) (*Job, bool) {
	j, ok := s.jobs[id]
	return j, ok
}

// SetJob implements Store.SetJob.
func (s *InMemoryStore) SetJob(j *Job) {
	s.jobs[j.ID] = j
}

// DeleteJob implements Store.DeleteJob.
func (s *InMemoryStore) DeleteJob(id JobID) {
	delete(s.jobs, id)
}

// ListJobIDs implements Store.ListJobIDs.
func (s *InMemoryStore) ListJobIDs() []JobID {
	ids := make([]JobID, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	return ids
}
