package sync

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of an item or a finished run.
type RunStatus string

const (
	StatusIdle      RunStatus = "idle"
	StatusRunning   RunStatus = "running"
	StatusSuccess   RunStatus = "success"
	StatusPartial   RunStatus = "partial_failure"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status describes a finished run.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusPartial, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// RunResult is the outcome of syncing (or clearing) one item.
type RunResult struct {
	RunID      string    `json:"run_id"`
	Item       string    `json:"item"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	ToTarget   int       `json:"to_target"`
	ToSource   int       `json:"to_source"`
	Deleted    int       `json:"deleted"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Bytes      int64     `json:"bytes"`
	Failures   []Failure `json:"failures,omitempty"`
	Status     RunStatus `json:"status"`
}

func newRunResult(item string) *RunResult {
	return &RunResult{
		RunID:     uuid.NewString(),
		Item:      item,
		StartedAt: time.Now().UTC(),
		Status:    StatusRunning,
	}
}

func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Applied is the number of actions that changed a file on either side.
func (r *RunResult) Applied() int {
	return r.ToTarget + r.ToSource + r.Deleted
}

// fail marks the whole run failed with a single run-level failure.
func (r *RunResult) fail(relPath string, kind ErrKind, err error) *RunResult {
	r.Failures = append(r.Failures, newFailure(relPath, kind, err))
	r.Failed++
	r.Status = StatusFailed
	r.FinishedAt = time.Now().UTC()
	return r
}

// finalize stamps the end time and derives the terminal status from the
// tallies, unless the run was cancelled mid-flight.
func (r *RunResult) finalize(cancelled bool) *RunResult {
	r.FinishedAt = time.Now().UTC()
	switch {
	case cancelled:
		r.Status = StatusCancelled
	case r.Failed > 0:
		r.Status = StatusPartial
	default:
		r.Status = StatusSuccess
	}
	return r
}
