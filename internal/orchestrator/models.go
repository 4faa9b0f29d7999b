package orchestrator

import "time"

// JobID uniquely identifies a packaging job. It also prefixes every output
// file of the job, so it must be a valid file name.
type JobID string

// JobState is the lifecycle state of a job.
type JobState string

const (
	// StateInProgress means the manifests are written and the encoder runs.
	StateInProgress JobState = "in_progress"
	// StateDone means the encoder exited. It is terminal; a failed encode
	// is Done as well.
	StateDone JobState = "done"
)

// Job is the registry record for one job id.
type Job struct {
	ID         JobID     `json:"id"`
	Path       string    `json:"path"`
	State      JobState  `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	// ExitError is the encoder's exit error, if any. It does not change State.
	ExitError string `json:"exit_error,omitempty"`

	// Managed by the repository (not exposed in the API).
	pending  bool          // start function still running
	ready    chan struct{} // closed once the start function returned
	startErr error
}
