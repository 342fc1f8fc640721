package sync

import "errors"

// ErrKind classifies a per-file failure.
type ErrKind string

const (
	// KindValidation covers problems detected before touching any file.
	KindValidation ErrKind = "validation"
	// KindIO covers filesystem errors while copying or deleting.
	KindIO ErrKind = "io"
	// KindCancelled marks work abandoned because the run was cancelled.
	KindCancelled ErrKind = "cancelled"
	// KindIntegrity marks a verify-mode digest mismatch.
	KindIntegrity ErrKind = "integrity"
)

var (
	// ErrSyncInProgress means another run holds the engine.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrDigestMismatch is wrapped into integrity failures.
	ErrDigestMismatch = errors.New("digest mismatch after copy")
)

// Failure records one file that could not be brought in sync. The run keeps
// going; failures surface in the RunResult.
type Failure struct {
	RelPath string  `json:"rel_path"`
	Kind    ErrKind `json:"kind"`
	Message string  `json:"message"`
}

func newFailure(relPath string, kind ErrKind, err error) Failure {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Failure{RelPath: relPath, Kind: kind, Message: msg}
}
