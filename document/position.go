package document

import (
	"math"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"fortio.org/safecast"

	"github.com/gossip-lsp/sightline/protocol"
)

// Offsets in this package are byte offsets into UTF-8 text. Positions count
// characters in UTF-16 code units, as LSP requires. A line ends at "\n";
// a "\r" before it is not part of the line.

// OffsetAt converts pos to a byte offset in text. A line past the end gives
// len(text); a character past the end of its line gives the line end.
func OffsetAt(text string, pos protocol.Position) int {
	start, ok := lineStart(text, pos.Line)
	if !ok {
		return len(text)
	}
	line := text[start:lineEnd(text, start)]

	want := int(pos.Character)
	units, i := 0, 0
	for i < len(line) && units < want {
		r, size := utf8.DecodeRuneInString(line[i:])
		units += width(r, size)
		i += size
	}
	return start + i
}

// PositionAt converts a byte offset to a position. Offsets are clamped to
// the text, and an offset inside a multi-byte rune is moved back to the
// start of that rune.
func PositionAt(text string, offset int) protocol.Position {
	offset = max(0, min(offset, len(text)))
	for offset > 0 && offset < len(text) && !utf8.RuneStart(text[offset]) {
		offset--
	}

	before := text[:offset]
	start := strings.LastIndexByte(before, '\n') + 1
	return protocol.Position{
		Line:      toUint32(strings.Count(before, "\n")),
		Character: toUint32(utf16Len(strings.TrimSuffix(before[start:], "\r"))),
	}
}

// lineStart returns the offset of the first byte of line n.
func lineStart(text string, n uint32) (int, bool) {
	offset := 0
	for ; n > 0; n-- {
		nl := strings.IndexByte(text[offset:], '\n')
		if nl < 0 {
			return 0, false
		}
		offset += nl + 1
	}
	return offset, true
}

// lineEnd returns the offset of the terminator of the line starting at
// start, or len(text) on the last line.
func lineEnd(text string, start int) int {
	nl := strings.IndexByte(text[start:], '\n')
	if nl < 0 {
		return len(text)
	}
	end := start + nl
	if end > start && text[end-1] == '\r' {
		end--
	}
	return end
}

func utf16Len(s string) int {
	n := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		n += width(r, size)
		i += size
	}
	return n
}

// width is the UTF-16 length of a decoded rune. Invalid bytes count as one
// unit each, like the replacement character they decode to.
func width(r rune, size int) int {
	if r == utf8.RuneError && size == 1 {
		return 1
	}
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

func toUint32(n int) uint32 {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		return math.MaxUint32
	}
	return v
}

// WordAt returns the identifier-like word touching pos, or "".
func WordAt(text string, pos protocol.Position) string {
	offset := OffsetAt(text, pos)
	start, end := offset, offset
	for start > 0 && isWordChar(text[start-1]) {
		start--
	}
	for end < len(text) && isWordChar(text[end]) {
		end++
	}
	return text[start:end]
}

func isWordChar(b byte) bool {
	return b == '_' || '0' <= b && b <= '9' || 'a' <= b && b <= 'z' || 'A' <= b && b <= 'Z'
}
