// Package syncstate classifies a mention block against its annotation.
package syncstate

// Status is the sync state of a block.
type Status string

const (
	NotSynced   Status = "not-synced"
	Synced      Status = "synced"
	NeedsResync Status = "needs-resync"
)

// Classify derives the status of a block from the annotation on its start
// line and the hash of its current content. It holds no state; callers
// recompute it whenever the text may have changed.
func Classify(hasAnnotation bool, memoID, storedHash, currentHash string) Status {
	switch {
	case !hasAnnotation || memoID == "":
		return NotSynced
	case storedHash == "":
		// Legacy annotation without a hash: sync once to set a baseline.
		return NeedsResync
	case storedHash == currentHash:
		return Synced
	default:
		return NeedsResync
	}
}
