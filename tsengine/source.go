package tsengine

import (
	"math"
	"sort"
	"unicode/utf8"

	"fortio.org/safecast"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/gossip-lsp/sightline/protocol"
)

// source is file text with a line table for offset/position conversion.
// Offsets are bytes; positions count UTF-16 code units.
type source struct {
	text  string
	lines []int // byte offset of each line start
}

func newSource(text string) *source {
	lines := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, i+1)
		}
	}
	return &source{text: text, lines: lines}
}

func (s *source) lineOf(offset int) int {
	return sort.Search(len(s.lines), func(i int) bool { return s.lines[i] > offset }) - 1
}

// position converts a byte offset to an LSP position.
func (s *source) position(offset int) protocol.Position {
	offset = max(0, min(offset, len(s.text)))
	line := s.lineOf(offset)
	var units int
	for _, r := range s.text[s.lines[line]:offset] {
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
	}
	return protocol.Position{Line: toUint32(line), Character: toUint32(units)}
}

func (s *source) span(start, end int) protocol.Range {
	return protocol.Range{Start: s.position(start), End: s.position(end)}
}

// offset converts an LSP position back to a byte offset.
func (s *source) offset(pos protocol.Position) int {
	line := int(pos.Line)
	if line >= len(s.lines) {
		return len(s.text)
	}
	i := s.lines[line]
	for units := 0; i < len(s.text) && units < int(pos.Character); {
		r, size := utf8.DecodeRuneInString(s.text[i:])
		if r == '\n' {
			break
		}
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
		i += size
	}
	return i
}

// pointOffset converts a tree-sitter point (row, byte column) to an offset.
func (s *source) pointOffset(row, column uint32) int {
	if int(row) >= len(s.lines) {
		return len(s.text)
	}
	return min(s.lines[row]+int(column), len(s.text))
}

// fromPoint rewrites a range expressed in tree-sitter points into LSP
// positions.
func (s *source) fromPoint(r protocol.Range) protocol.Range {
	return s.span(
		s.pointOffset(r.Start.Line, r.Start.Character),
		s.pointOffset(r.End.Line, r.End.Character),
	)
}

func toInt(u uint) int {
	v, err := safecast.Conv[int](u)
	if err != nil {
		return math.MaxInt
	}
	return v
}

func toUint32(i int) uint32 {
	v, err := safecast.Conv[uint32](i)
	if err != nil {
		return math.MaxUint32
	}
	return v
}

func startOf(n *tree_sitter.Node) int { return toInt(n.StartByte()) }
func endOf(n *tree_sitter.Node) int   { return toInt(n.EndByte()) }
