// Package treesitter provides native tree-sitter integration for sightline.
// It ties a parser-per-document lifecycle to the document store, with automatic
// incremental re-parsing on edits, one-shot parsing for files on disk, and
// query helpers.
package treesitter

import (
	"errors"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// Config configures the tree-sitter integration.
type Config struct {
	// Languages maps file extensions (e.g., ".go", ".py") to tree-sitter languages.
	Languages map[string]*tree_sitter.Language

	// Matchers provides advanced file-to-language matching beyond extensions.
	// Matchers are evaluated in order; the first match wins.
	Matchers []LanguageMatcher
}

// LanguageMatcher associates a tree-sitter language with one or more matching
// strategies. At least one of Extensions, Filenames, Pattern, or LanguageID
// must be set.
type LanguageMatcher struct {
	Language   *tree_sitter.Language
	Extensions []string // e.g., [".yml", ".yaml"]
	Filenames  []string // exact filenames, e.g., ["go.mod"]
	Pattern    string   // glob pattern, e.g., ".github/workflows/*.yml"
	LanguageID string   // LSP languageId, e.g., "yaml"
}

// Tree wraps a tree-sitter Tree together with the source it was parsed from.
type Tree struct {
	raw *tree_sitter.Tree
	src []byte
}

// ErrParse is returned when the parser produces no tree at all.
var ErrParse = errors.New("treesitter: parse failed")

// Parse parses src with lang and returns an owned Tree. The caller must Close it.
func Parse(lang *tree_sitter.Language, src []byte) (*Tree, error) {
	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(lang); err != nil {
		return nil, err
	}
	raw := parser.Parse(src, nil)
	if raw == nil {
		return nil, ErrParse
	}
	return &Tree{raw: raw, src: src}, nil
}

// Raw returns the underlying tree-sitter Tree.
func (t *Tree) Raw() *tree_sitter.Tree {
	if t == nil {
		return nil
	}
	return t.raw
}

// RootNode returns the root node of the parse tree.
func (t *Tree) RootNode() *tree_sitter.Node {
	if t == nil || t.raw == nil {
		return nil
	}
	return t.raw.RootNode()
}

// Source returns the bytes the tree was parsed from.
func (t *Tree) Source() []byte {
	if t == nil {
		return nil
	}
	return t.src
}

// Close releases the tree-sitter tree resources.
func (t *Tree) Close() {
	if t != nil && t.raw != nil {
		t.raw.Close()
	}
}
