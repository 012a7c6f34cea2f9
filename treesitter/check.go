package treesitter

import (
	"fmt"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/gossip-lsp/sightline/protocol"
)

// Check is a declarative, pattern-based diagnostic rule. The Pattern runs as
// a tree-sitter query and every capture becomes a diagnostic.
type Check struct {
	// Name identifies the check; it is the default diagnostic source.
	Name string

	// Pattern is a tree-sitter query pattern (e.g., "(comment) @comment").
	Pattern string

	// Severity is the LSP diagnostic severity for matches.
	Severity protocol.DiagnosticSeverity

	// Source is the diagnostic source string. If empty, Name is used.
	Source string

	// Filter, if non-nil, is called for each capture. Return true to keep it.
	Filter func(Capture) bool

	// Message converts a capture into a diagnostic message string.
	Message func(Capture) string
}

// Run executes the check against tree. Ranges use tree-sitter points
// (zero-based row, byte column).
func (c Check) Run(tree *Tree, lang *tree_sitter.Language) ([]protocol.Diagnostic, error) {
	captures, err := tree.QueryCaptures(lang, c.Pattern)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", c.Name, err)
	}
	source := c.Source
	if source == "" {
		source = c.Name
	}
	var diags []protocol.Diagnostic
	for _, capture := range captures {
		if c.Filter != nil && !c.Filter(capture) {
			continue
		}
		msg := capture.Text
		if c.Message != nil {
			msg = c.Message(capture)
		}
		diags = append(diags, protocol.Diagnostic{
			Range:    pointRange(capture.Node),
			Severity: c.Severity,
			Source:   source,
			Message:  msg,
		})
	}
	return diags, nil
}

// SyntaxErrors reports every ERROR and MISSING node in tree as an
// error-severity diagnostic. Ranges are points, as in Check.Run.
func SyntaxErrors(tree *Tree) []protocol.Diagnostic {
	root := tree.RootNode()
	if root == nil || !root.HasError() {
		return nil
	}
	var diags []protocol.Diagnostic
	Walk(root, func(n *tree_sitter.Node) bool {
		switch {
		case n.IsMissing():
			diags = append(diags, protocol.Diagnostic{
				Range:    pointRange(n),
				Severity: protocol.SeverityError,
				Source:   "syntax",
				Message:  fmt.Sprintf("missing %s", n.Kind()),
			})
			return false
		case n.IsError():
			diags = append(diags, protocol.Diagnostic{
				Range:    pointRange(n),
				Severity: protocol.SeverityError,
				Source:   "syntax",
				Message:  "syntax error",
			})
			return false
		}
		return n.HasError()
	})
	return diags
}
