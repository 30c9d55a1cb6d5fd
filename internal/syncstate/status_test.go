package syncstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		has     bool
		memoID  string
		stored  string
		current string
		want    Status
	}{
		{"no annotation", false, "", "", "h1", NotSynced},
		{"no annotation ignores other fields", false, "id1", "h1", "h1", NotSynced},
		{"annotation without memo id", true, "", "h1", "h1", NotSynced},
		{"missing stored hash", true, "id1", "", "h1", NeedsResync},
		{"hash matches", true, "id1", "h1", "h1", Synced},
		{"hash differs", true, "id1", "h1", "h2", NeedsResync},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.has, tc.memoID, tc.stored, tc.current))
		})
	}
}
