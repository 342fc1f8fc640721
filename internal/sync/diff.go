package sync

import (
	"fmt"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// Class is the stateless classification of one relative path across the two
// snapshots. With no baseline, absence on one side always reads as an
// addition on the other, never as a deletion.
type Class int

const (
	ClassUnchanged Class = iota
	ClassSourceOnly
	ClassTargetOnly
	ClassConflict
)

func (c Class) String() string {
	switch c {
	case ClassUnchanged:
		return "unchanged"
	case ClassSourceOnly:
		return "source_only"
	case ClassTargetOnly:
		return "target_only"
	case ClassConflict:
		return "conflict"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Change pairs a classification with the metadata seen on each side. Source
// or Target is nil when the file exists on one side only.
type Change struct {
	RelPath string
	Class   Class
	Source  *FileMeta
	Target  *FileMeta
}

// Diff classifies the union of both snapshots' paths. Both present with
// equal size and (window-truncated) mod time is unchanged; both present
// with any difference is a conflict for the resolver. Output is sorted by
// path so runs are deterministic.
func Diff(src, tgt *Snapshot, window time.Duration) []*Change {
	paths := mapset.NewThreadUnsafeSet[string]()
	for p := range src.Files {
		paths.Add(p)
	}
	for p := range tgt.Files {
		paths.Add(p)
	}

	sorted := paths.ToSlice()
	sort.Strings(sorted)

	changes := make([]*Change, 0, len(sorted))
	for _, p := range sorted {
		s := src.Files[p]
		t := tgt.Files[p]

		var class Class
		switch {
		case s != nil && t == nil:
			class = ClassSourceOnly
		case s == nil && t != nil:
			class = ClassTargetOnly
		case s.SameAs(t, window):
			class = ClassUnchanged
		default:
			class = ClassConflict
		}

		changes = append(changes, &Change{
			RelPath: p,
			Class:   class,
			Source:  s,
			Target:  t,
		})
	}

	return changes
}
