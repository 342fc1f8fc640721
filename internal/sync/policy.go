package sync

import (
	"fmt"
	"strings"
)

// Policy decides which side of a conflicting pair wins.
type Policy int

const (
	// PreferNewer keeps the side with the strictly later mod time. Exact
	// ties are skipped rather than churned.
	PreferNewer Policy = iota
	// PreferSource always pushes the source copy to the target.
	PreferSource
	// PreferTarget always pulls the target copy back to the source.
	PreferTarget
)

func (p Policy) String() string {
	switch p {
	case PreferNewer:
		return "newer"
	case PreferSource:
		return "source"
	case PreferTarget:
		return "target"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy accepts the canonical names plus the spellings older config
// files used (keep_newer, local_wins, remote_wins).
func ParsePolicy(s string) (Policy, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")

	switch norm {
	case "", "newer", "keep_newer", "prefer_newer":
		return PreferNewer, nil
	case "source", "local_wins", "prefer_source":
		return PreferSource, nil
	case "target", "remote_wins", "prefer_target":
		return PreferTarget, nil
	default:
		return PreferNewer, fmt.Errorf("unknown conflict policy %q", s)
	}
}
