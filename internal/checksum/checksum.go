// Package checksum provides the two digests used across the vault: a SHA-256
// file checksum for index change detection and the compact content token
// persisted inside memo annotations.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Content returns the content token of a block's annotation-stripped text.
//
// The algorithm is part of the annotation wire format and must not change:
// the text is trimmed, then every UTF-16 code unit u is folded into a 32-bit
// signed accumulator as h = h*31 + u with wrap-around. The absolute value,
// taken in 64-bit space so that math.MinInt32 stays positive, is rendered in
// lowercase base 36.
func Content(text string) string {
	var h int32
	for _, r := range strings.TrimSpace(text) {
		if r >= 0x10000 {
			hi, lo := utf16.EncodeRune(r)
			h = h*31 + hi
			h = h*31 + lo
			continue
		}
		h = h*31 + r
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}
