package sync

import (
	"time"
)

// FileMeta is the per-file record a snapshot keeps: enough to decide whether
// two sides of a pair differ without reading content.
type FileMeta struct {
	RelPath string    `json:"rel_path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// truncateModTime rounds t down to the given window. A window of zero or
// less keeps full precision. Coarse-timestamp filesystems (FAT stores 2s
// resolution) need a non-zero window to compare stably across mounts.
func truncateModTime(t time.Time, window time.Duration) time.Time {
	if window <= 0 {
		return t
	}
	return t.Truncate(window)
}

// SameAs reports whether both sides would be considered unchanged: exact
// same size and same mod time after window truncation.
func (m *FileMeta) SameAs(other *FileMeta, window time.Duration) bool {
	if m == nil || other == nil {
		return false
	}
	return m.Size == other.Size &&
		truncateModTime(m.ModTime, window).Equal(truncateModTime(other.ModTime, window))
}

// NewerThan reports whether m's mod time is strictly later than other's
// after window truncation. Equal times are not newer.
func (m *FileMeta) NewerThan(other *FileMeta, window time.Duration) bool {
	if m == nil || other == nil {
		return false
	}
	return truncateModTime(m.ModTime, window).After(truncateModTime(other.ModTime, window))
}
