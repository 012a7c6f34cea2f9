package lsptest

import (
	"testing"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/gossip-lsp/sightline/treesitter"
)

// ParseString parses source code with the given tree-sitter language. The
// tree is closed when the test completes.
func ParseString(t testing.TB, lang *tree_sitter.Language, src string) *treesitter.Tree {
	t.Helper()
	tree, err := treesitter.Parse(lang, []byte(src))
	if err != nil {
		t.Fatalf("parsing: %v", err)
	}
	t.Cleanup(tree.Close)
	return tree
}

// AssertNodeKind asserts that a tree-sitter node has the expected kind.
func AssertNodeKind(t testing.TB, node *tree_sitter.Node, kind string) {
	t.Helper()
	if node == nil {
		t.Fatalf("node is nil, expected kind %q", kind)
	}
	if node.Kind() != kind {
		t.Errorf("node kind = %q, want %q", node.Kind(), kind)
	}
}

// AssertNoErrors asserts that the parse tree contains no syntax errors.
func AssertNoErrors(t testing.TB, tree *treesitter.Tree) {
	t.Helper()
	if tree == nil {
		t.Fatal("tree is nil")
	}
	if diags := treesitter.SyntaxErrors(tree); len(diags) > 0 {
		t.Errorf("parse tree contains %d errors, first: %s", len(diags), diags[0].Message)
	}
}
