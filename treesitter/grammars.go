package treesitter

import (
	"unsafe"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_json "github.com/tree-sitter/tree-sitter-json/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_yaml "github.com/tree-sitter-grammars/tree-sitter-yaml/bindings/go"
)

// Grammars for the languages sightline understands out of the box.
var (
	Go     = tree_sitter.NewLanguage(unsafe.Pointer(tree_sitter_go.Language()))
	Python = tree_sitter.NewLanguage(unsafe.Pointer(tree_sitter_python.Language()))
	JSON   = tree_sitter.NewLanguage(unsafe.Pointer(tree_sitter_json.Language()))
	YAML   = tree_sitter.NewLanguage(unsafe.Pointer(tree_sitter_yaml.Language()))
)

// DefaultConfig registers the bundled grammars by extension and LSP language id.
func DefaultConfig() Config {
	return Config{
		Matchers: []LanguageMatcher{
			{Language: Go, Extensions: []string{".go"}, LanguageID: "go"},
			{Language: Python, Extensions: []string{".py", ".pyi"}, LanguageID: "python"},
			{Language: JSON, Extensions: []string{".json"}, LanguageID: "json"},
			{Language: YAML, Extensions: []string{".yaml", ".yml"}, LanguageID: "yaml"},
		},
	}
}
