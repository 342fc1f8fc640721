package sync

import "time"

// Resolve turns one classified change into an action under the given
// policy. One-sided presence always copies toward the absent side;
// resolution never deletes.
func Resolve(ch *Change, policy Policy, window time.Duration) Action {
	switch ch.Class {
	case ClassSourceOnly:
		return Action{RelPath: ch.RelPath, Direction: ToTarget, Size: ch.Source.Size}
	case ClassTargetOnly:
		return Action{RelPath: ch.RelPath, Direction: ToSource, Size: ch.Target.Size}
	case ClassConflict:
		return resolveConflict(ch, policy, window)
	default:
		return Action{RelPath: ch.RelPath, Direction: Skip}
	}
}

func resolveConflict(ch *Change, policy Policy, window time.Duration) Action {
	switch policy {
	case PreferSource:
		return Action{RelPath: ch.RelPath, Direction: ToTarget, Size: ch.Source.Size}
	case PreferTarget:
		return Action{RelPath: ch.RelPath, Direction: ToSource, Size: ch.Target.Size}
	default: // PreferNewer
		if ch.Source.NewerThan(ch.Target, window) {
			return Action{RelPath: ch.RelPath, Direction: ToTarget, Size: ch.Source.Size}
		}
		if ch.Target.NewerThan(ch.Source, window) {
			return Action{RelPath: ch.RelPath, Direction: ToSource, Size: ch.Target.Size}
		}
		// same timestamp on both sides: no safe winner, leave both alone
		return Action{RelPath: ch.RelPath, Direction: Skip}
	}
}

// ResolveAll maps every change to an action, preserving diff order. Skips
// are kept so the executor can account for them.
func ResolveAll(changes []*Change, policy Policy, window time.Duration) []Action {
	actions := make([]Action, 0, len(changes))
	for _, ch := range changes {
		actions = append(actions, Resolve(ch, policy, window))
	}
	return actions
}
