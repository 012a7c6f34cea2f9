package treesitter

import (
	"math"
	"sync"

	"fortio.org/safecast"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/gossip-lsp/sightline/protocol"
)

// NodeAt returns the deepest node spanning the byte offset.
func (t *Tree) NodeAt(offset int) *tree_sitter.Node {
	root := t.RootNode()
	if root == nil {
		return nil
	}
	o := clampUint(offset)
	return root.DescendantForByteRange(o, o)
}

// NamedNodeAt is NodeAt restricted to named nodes.
func (t *Tree) NamedNodeAt(offset int) *tree_sitter.Node {
	root := t.RootNode()
	if root == nil {
		return nil
	}
	o := clampUint(offset)
	return root.NamedDescendantForByteRange(o, o)
}

// NodeText returns the source covered by node.
func (t *Tree) NodeText(node *tree_sitter.Node) string {
	if t == nil || node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if start > end || end > uint(len(t.src)) {
		return ""
	}
	return string(t.src[start:end])
}

// Capture is one node captured by a query.
type Capture struct {
	Name string
	Node *tree_sitter.Node
	Text string
}

type queryKey struct {
	lang    *tree_sitter.Language
	pattern string
}

// queries caches compiled queries for the life of the process. Patterns are
// compile-time constants, so the set stays small.
var queries sync.Map // queryKey -> *tree_sitter.Query

func compileQuery(lang *tree_sitter.Language, pattern string) (*tree_sitter.Query, error) {
	key := queryKey{lang: lang, pattern: pattern}
	if q, ok := queries.Load(key); ok {
		return q.(*tree_sitter.Query), nil
	}
	q, qerr := tree_sitter.NewQuery(lang, pattern)
	if qerr != nil {
		return nil, qerr
	}
	if prev, loaded := queries.LoadOrStore(key, q); loaded {
		q.Close()
		return prev.(*tree_sitter.Query), nil
	}
	return q, nil
}

// QueryCaptures runs pattern over the whole tree and returns every capture
// in match order.
func (t *Tree) QueryCaptures(lang *tree_sitter.Language, pattern string) ([]Capture, error) {
	root := t.RootNode()
	if root == nil {
		return nil, nil
	}
	query, err := compileQuery(lang, pattern)
	if err != nil {
		return nil, err
	}

	cursor := tree_sitter.NewQueryCursor()
	defer cursor.Close()

	names := query.CaptureNames()
	matches := cursor.Matches(query, root, t.src)
	var out []Capture
	for match := matches.Next(); match != nil; match = matches.Next() {
		for _, c := range match.Captures {
			node := c.Node
			var name string
			if int(c.Index) < len(names) {
				name = names[c.Index]
			}
			out = append(out, Capture{Name: name, Node: &node, Text: t.NodeText(&node)})
		}
	}
	return out, nil
}

// pointRange reports node's extent as tree-sitter points: zero-based rows
// and byte columns, not UTF-16 characters.
func pointRange(node *tree_sitter.Node) protocol.Range {
	if node == nil {
		return protocol.Range{}
	}
	start, end := node.StartPosition(), node.EndPosition()
	return protocol.Range{
		Start: protocol.Position{Line: clampUint32(start.Row), Character: clampUint32(start.Column)},
		End:   protocol.Position{Line: clampUint32(end.Row), Character: clampUint32(end.Column)},
	}
}

// Walk visits node and its descendants in document order. Returning false
// from fn skips the node's children.
func Walk(node *tree_sitter.Node, fn func(*tree_sitter.Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	cursor := node.Walk()
	defer cursor.Close()
	for _, child := range node.Children(cursor) {
		Walk(&child, fn)
	}
}

func clampUint(n int) uint {
	if n < 0 {
		return 0
	}
	return uint(n)
}

func clampUint32(n uint) uint32 {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		return math.MaxUint32
	}
	return v
}
