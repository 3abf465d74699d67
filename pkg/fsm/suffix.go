package fsm

import (
	"fmt"

	"github.com/pkgtx/corepm/pkg/types"
)

// tidSuffix formats the ";tid" working suffix appended to a file's
// temporary name while it's being written, so a crash between write and
// rename leaves both the old content and the new content on disk.
func tidSuffix(tid uint32) string {
	return fmt.Sprintf(";%08x", tid)
}

// commitSuffix returns the on-disk suffix a file's *pre-existing*
// instance is renamed to at commit time, or "" if none applies. goal
// distinguishes the two directions BACKUP can run in: install-direction
// (a foreign file blocks a fresh install) renames to .rpmorig;
// erase-direction (a locally modified config file is being removed)
// renames to .rpmsave, matching the SAVE action's install-direction
// outcome. ALTNAME is absent on purpose: it leaves the existing
// instance untouched and redirects the *new* content to ".rpmnew"
// instead, which commitRegular handles through its final-path choice.
func commitSuffix(action types.FileAction, goal types.Goal) string {
	switch action {
	case types.FABackup:
		if goal == types.GoalPkgErase {
			return ".rpmsave"
		}
		return ".rpmorig"
	case types.FASave:
		return ".rpmsave"
	default:
		return ""
	}
}

// writesTemp reports whether action stages its content through the
// ";tid" temp name before committing.
func writesTemp(action types.FileAction) bool {
	switch action {
	case types.FACreate, types.FABackup, types.FASave:
		return true
	case types.FAAltName:
		return true
	default:
		return false
	}
}
