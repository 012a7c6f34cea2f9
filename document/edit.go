package document

import (
	"strings"

	"github.com/gossip-lsp/sightline/protocol"
)

// Point is a row and a byte column, the coordinates tree-sitter edits use.
type Point struct {
	Row    int
	Column int
}

func pointAt(text string, offset int) Point {
	before := text[:offset]
	return Point{
		Row:    strings.Count(before, "\n"),
		Column: offset - (strings.LastIndexByte(before, '\n') + 1),
	}
}

// EditRange describes one applied change in byte offsets and byte points,
// ready to be handed to an incremental parser.
type EditRange struct {
	StartByte  int
	OldEndByte int
	NewEndByte int
	Start      Point
	OldEnd     Point
	NewEnd     Point
}

// ApplyChanges applies content changes in order and returns the new text
// with one EditRange per change. A change without a range replaces the
// whole text. Ranges are clamped to the text, and a reversed range is
// treated as empty at its end.
func ApplyChanges(text string, changes []protocol.TextDocumentContentChangeEvent) (string, []EditRange) {
	edits := make([]EditRange, 0, len(changes))
	for _, change := range changes {
		start, end := 0, len(text)
		if change.Range != nil {
			start = OffsetAt(text, change.Range.Start)
			end = OffsetAt(text, change.Range.End)
			start = min(start, end)
		}
		next := text[:start] + change.Text + text[end:]
		newEnd := start + len(change.Text)
		edits = append(edits, EditRange{
			StartByte:  start,
			OldEndByte: end,
			NewEndByte: newEnd,
			Start:      pointAt(text, start),
			OldEnd:     pointAt(text, end),
			NewEnd:     pointAt(next, newEnd),
		})
		text = next
	}
	return text, edits
}
