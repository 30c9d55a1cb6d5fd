package noteservice

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff renders the change from before to after as a unified-style patch.
// Identical inputs yield "".
func Diff(before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	return dmp.PatchToText(dmp.PatchMake(before, diffs))
}
