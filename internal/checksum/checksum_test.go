package checksum

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContent_PinnedTokens(t *testing.T) {
	// These values are persisted in user documents; changing them breaks
	// every existing annotation.
	assert.Equal(t, "0", Content(""))
	assert.Equal(t, "2p", Content("a"))
	assert.Equal(t, "2e9", Content("ab"))
}

func TestContent_TrimsOnce(t *testing.T) {
	assert.Equal(t, Content("note body"), Content("  note body\n\n"))
	assert.NotEqual(t, Content("note  body"), Content("note body"))
}

func TestContent_OrderSensitive(t *testing.T) {
	a := Content(strings.Join([]string{"first", "second"}, "\n"))
	b := Content(strings.Join([]string{"second", "first"}, "\n"))
	assert.NotEqual(t, a, b)
}

func TestContent_Deterministic(t *testing.T) {
	text := "Met Jane\n  discussed Q3 budget"
	assert.Equal(t, Content(text), Content(text))
}

func TestContent_NeverNegative(t *testing.T) {
	for _, s := range []string{"overflow the accumulator many times over", "日本語のテキスト", "emoji 🎉 here"} {
		tok := Content(s)
		assert.NotEmpty(t, tok)
		assert.False(t, strings.HasPrefix(tok, "-"), "token %q for %q", tok, s)
	}
}

func TestSum_Hex(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Sum(nil))
}
