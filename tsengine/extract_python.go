package tsengine

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/gossip-lsp/sightline/engine"
)

func extractPython(f *fileIndex, root *tree_sitter.Node, src []byte) {
	f.addPythonBlock(root, src, "")
	f.collectRefs(root, src, pythonRef)
}

// addPythonBlock records the declarations of a module or class body.
// Function bodies are not descended into.
func (f *fileIndex) addPythonBlock(block *tree_sitter.Node, src []byte, class string) {
	for _, child := range namedChildren(block) {
		n := child
		outer := &n
		if n.Kind() == "decorated_definition" {
			def := n.ChildByFieldName("definition")
			if def == nil {
				continue
			}
			n = *def
		}

		switch n.Kind() {
		case "class_definition":
			name := n.ChildByFieldName("name")
			if name == nil {
				continue
			}
			d := f.addDecl(outer, name, src, engine.KindClass)
			d.el.Container = class
			d.el.Signature = strings.TrimSuffix(header(&n, src, "body"), ":")
			d.supers = pythonBases(n.ChildByFieldName("superclasses"), src)
			body := n.ChildByFieldName("body")
			d.doc = pythonDoc(outer, body, src)
			if body != nil {
				f.addPythonBlock(body, src, d.el.Name)
			}

		case "function_definition":
			name := n.ChildByFieldName("name")
			if name == nil {
				continue
			}
			kind := engine.KindFunction
			if class != "" {
				kind = engine.KindMethod
			}
			d := f.addDecl(outer, name, src, kind)
			d.el.Container = class
			d.el.Params = pythonParams(n.ChildByFieldName("parameters"), src, class != "")
			d.el.Signature = strings.TrimSuffix(header(&n, src, "body"), ":")
			d.doc = pythonDoc(outer, n.ChildByFieldName("body"), src)

		case "expression_statement":
			assign := n.NamedChild(0)
			if assign == nil || assign.Kind() != "assignment" {
				continue
			}
			left := assign.ChildByFieldName("left")
			if left == nil || left.Kind() != "identifier" {
				continue
			}
			kind := engine.KindVariable
			if class != "" {
				kind = engine.KindProperty
			}
			d := f.addDecl(&n, left, src, kind)
			d.el.Container = class
			d.el.Signature = strings.TrimSpace(n.Utf8Text(src))
			d.doc = goDoc(&n, src)
		}
	}
}

func pythonBases(args *tree_sitter.Node, src []byte) []string {
	var bases []string
	for _, a := range namedChildren(args) {
		switch a.Kind() {
		case "identifier":
			bases = append(bases, a.Utf8Text(src))
		case "attribute":
			if attr := a.ChildByFieldName("attribute"); attr != nil {
				bases = append(bases, attr.Utf8Text(src))
			}
		}
	}
	return bases
}

// pythonParams counts parameters, excluding the receiver of methods. -1
// means the function takes *args or **kwargs.
func pythonParams(list *tree_sitter.Node, src []byte, method bool) int {
	n := 0
	for i, p := range namedChildren(list) {
		switch p.Kind() {
		case "list_splat_pattern", "dictionary_splat_pattern":
			return -1
		case "identifier":
			if method && i == 0 {
				continue
			}
		}
		n++
	}
	return n
}

// pythonDoc returns the docstring of body, or the comments above the
// definition.
func pythonDoc(def, body *tree_sitter.Node, src []byte) string {
	if body != nil {
		if first := body.NamedChild(0); first != nil && first.Kind() == "expression_statement" {
			if s := first.NamedChild(0); s != nil && s.Kind() == "string" {
				return unquote(s.Utf8Text(src))
			}
		}
	}
	return goDoc(def, src)
}

func unquote(s string) string {
	s = strings.TrimLeft(s, "rRbBuUfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			s = s[len(q) : len(s)-len(q)]
			break
		}
	}
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, "\n")
}

// pythonRef accepts identifiers except parameter and keyword-argument names.
func pythonRef(n *tree_sitter.Node) (ok, member bool) {
	if n.Kind() != "identifier" {
		return false, false
	}
	parent := n.Parent()
	if parent == nil {
		return true, false
	}
	switch parent.Kind() {
	case "parameters", "default_parameter", "typed_parameter", "typed_default_parameter", "lambda_parameters":
		return false, false
	case "keyword_argument":
		if name := parent.ChildByFieldName("name"); name != nil && name.StartByte() == n.StartByte() {
			return false, false
		}
	case "attribute":
		if attr := parent.ChildByFieldName("attribute"); attr != nil && attr.StartByte() == n.StartByte() {
			return true, true
		}
	}
	return true, false
}
