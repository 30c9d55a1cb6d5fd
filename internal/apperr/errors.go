// Package apperr holds the sentinel errors shared by the service layers.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrMentionNotFound reports that the link syntax of a mention could not
	// be located on its line, so no annotation was written.
	ErrMentionNotFound = errors.New("mention not found on line")
	// ErrNoMention reports that a block start line carries no contact mention.
	ErrNoMention = errors.New("no contact mention on line")
	// ErrNotLineOwner reports that the first annotation on a block's start
	// line belongs to another contact, which owns the line's sync state.
	ErrNotLineOwner = errors.New("line is synced to another contact")
	// ErrSyncInProgress reports that a sync for the same block is in flight.
	ErrSyncInProgress = errors.New("sync already in progress")
)
