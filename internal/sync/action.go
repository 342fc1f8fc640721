package sync

import "fmt"

// Direction is what the executor should do with one relative path.
type Direction int

const (
	// Skip leaves both sides untouched.
	Skip Direction = iota
	// ToTarget copies the source file over the target side.
	ToTarget
	// ToSource copies the target file back over the source side.
	ToSource
	// DeleteFromTarget removes the file on the target side. Never produced
	// by conflict resolution, only by the explicit clear-target path.
	DeleteFromTarget
	// DeleteFromSource removes the file on the source side. Reserved; no
	// current operation emits it.
	DeleteFromSource
)

func (d Direction) String() string {
	switch d {
	case Skip:
		return "skip"
	case ToTarget:
		return "to_target"
	case ToSource:
		return "to_source"
	case DeleteFromTarget:
		return "delete_from_target"
	case DeleteFromSource:
		return "delete_from_source"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Action is one unit of executor work.
type Action struct {
	RelPath   string    `json:"rel_path"`
	Direction Direction `json:"direction"`
	Size      int64     `json:"size"`
}
