package tsengine

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/gossip-lsp/sightline/engine"
	"github.com/gossip-lsp/sightline/treesitter"
)

func namedChildren(n *tree_sitter.Node) []tree_sitter.Node {
	if n == nil {
		return nil
	}
	c := n.Walk()
	defer c.Close()
	return n.NamedChildren(c)
}

func fieldChildren(n *tree_sitter.Node, field string) []tree_sitter.Node {
	c := n.Walk()
	defer c.Close()
	return n.ChildrenByFieldName(field, c)
}

// addDecl records a declaration whose name is the node name.
func (f *fileIndex) addDecl(node, name *tree_sitter.Node, src []byte, kind engine.ElementKind) *decl {
	d := &decl{
		file:      f,
		start:     startOf(node),
		end:       endOf(node),
		nameStart: startOf(name),
		nameEnd:   endOf(name),
	}
	d.el = f.element(name.Utf8Text(src), kind, d.start, d.end)
	d.el.NameRange = f.src.span(d.nameStart, d.nameEnd)
	f.decls = append(f.decls, d)
	return d
}

// header returns the declaration text up to its body.
func header(node *tree_sitter.Node, src []byte, bodyField string) string {
	end := node.EndByte()
	if body := node.ChildByFieldName(bodyField); body != nil {
		end = body.StartByte()
	}
	return strings.TrimSpace(string(src[node.StartByte():end]))
}

// goDoc collects the line comments directly above node.
func goDoc(node *tree_sitter.Node, src []byte) string {
	var lines []string
	next := node
	for prev := node.PrevSibling(); prev != nil && prev.Kind() == "comment"; prev = prev.PrevSibling() {
		if prev.EndPosition().Row+1 < next.StartPosition().Row {
			break
		}
		lines = append(lines, commentText(prev.Utf8Text(src)))
		next = prev
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func commentText(c string) string {
	switch {
	case strings.HasPrefix(c, "//"):
		return strings.TrimPrefix(strings.TrimPrefix(c, "//"), " ")
	case strings.HasPrefix(c, "/*"):
		return strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(c, "/*"), "*/"))
	case strings.HasPrefix(c, "#"):
		return strings.TrimPrefix(strings.TrimPrefix(c, "#"), " ")
	}
	return c
}

// goParams counts declared parameters; -1 means variadic.
func goParams(list *tree_sitter.Node) int {
	if list == nil {
		return 0
	}
	n := 0
	for _, p := range namedChildren(list) {
		switch p.Kind() {
		case "variadic_parameter_declaration":
			return -1
		case "parameter_declaration":
			if names := fieldChildren(&p, "name"); len(names) > 0 {
				n += len(names)
			} else {
				n++
			}
		}
	}
	return n
}

// baseTypeName strips pointers, type arguments and package qualifiers.
func baseTypeName(n *tree_sitter.Node, src []byte) string {
	for n != nil {
		switch n.Kind() {
		case "type_identifier", "identifier":
			return n.Utf8Text(src)
		case "pointer_type", "parenthesized_type", "type_elem":
			n = n.NamedChild(0)
		case "generic_type":
			n = n.ChildByFieldName("type")
		case "qualified_type":
			n = n.ChildByFieldName("name")
		default:
			return ""
		}
	}
	return ""
}

func extractGo(f *fileIndex, root *tree_sitter.Node, src []byte) {
	for _, child := range namedChildren(root) {
		n := child
		switch n.Kind() {
		case "function_declaration":
			name := n.ChildByFieldName("name")
			if name == nil {
				continue
			}
			d := f.addDecl(&n, name, src, engine.KindFunction)
			d.el.Params = goParams(n.ChildByFieldName("parameters"))
			d.el.Signature = header(&n, src, "body")
			d.doc = goDoc(&n, src)

		case "method_declaration":
			name := n.ChildByFieldName("name")
			if name == nil {
				continue
			}
			d := f.addDecl(&n, name, src, engine.KindMethod)
			if recv := namedChildren(n.ChildByFieldName("receiver")); len(recv) > 0 {
				d.el.Container = baseTypeName(recv[0].ChildByFieldName("type"), src)
			}
			d.el.Params = goParams(n.ChildByFieldName("parameters"))
			d.el.Signature = header(&n, src, "body")
			d.doc = goDoc(&n, src)

		case "type_declaration":
			specs := namedChildren(&n)
			for _, spec := range specs {
				s := spec
				if s.Kind() != "type_spec" && s.Kind() != "type_alias" {
					continue
				}
				docNode := &s
				if len(specs) == 1 {
					docNode = &n
				}
				f.addGoType(&s, docNode, src)
			}

		case "const_declaration", "var_declaration":
			f.addGoValues(&n, src, goDoc(&n, src))
		}
	}
	f.collectRefs(root, src, goRef)
}

func (f *fileIndex) addGoType(spec, docNode *tree_sitter.Node, src []byte) {
	name := spec.ChildByFieldName("name")
	typ := spec.ChildByFieldName("type")
	if name == nil {
		return
	}
	kind := engine.KindClass
	if typ != nil && typ.Kind() == "interface_type" {
		kind = engine.KindInterface
	}
	d := f.addDecl(spec, name, src, kind)
	d.doc = goDoc(docNode, src)
	if typ == nil {
		d.el.Signature = "type " + strings.TrimSpace(spec.Utf8Text(src))
		return
	}
	owner := d.el.Name

	switch typ.Kind() {
	default:
		d.el.Signature = "type " + strings.TrimSpace(spec.Utf8Text(src))

	case "struct_type":
		d.el.Signature = "type " + owner + " struct"
		for _, list := range namedChildren(typ) {
			if list.Kind() != "field_declaration_list" {
				continue
			}
			for _, field := range namedChildren(&list) {
				fd := field
				if fd.Kind() != "field_declaration" {
					continue
				}
				names := fieldChildren(&fd, "name")
				if len(names) == 0 {
					if super := baseTypeName(fd.ChildByFieldName("type"), src); super != "" {
						d.supers = append(d.supers, super)
					}
					continue
				}
				for _, nm := range names {
					p := f.addDecl(&fd, &nm, src, engine.KindProperty)
					p.el.Container = owner
					p.el.Signature = strings.TrimSpace(fd.Utf8Text(src))
					p.doc = goDoc(&fd, src)
				}
			}
		}

	case "interface_type":
		d.el.Signature = "type " + owner + " interface"
		for _, elem := range namedChildren(typ) {
			e := elem
			switch e.Kind() {
			case "method_elem", "method_spec":
				nm := e.ChildByFieldName("name")
				if nm == nil {
					continue
				}
				m := f.addDecl(&e, nm, src, engine.KindMethod)
				m.el.Container = owner
				m.el.Abstract = true
				m.el.Params = goParams(e.ChildByFieldName("parameters"))
				m.el.Signature = strings.TrimSpace(e.Utf8Text(src))
				m.doc = goDoc(&e, src)
			case "type_elem", "constraint_elem", "interface_type_name", "qualified_type", "type_identifier":
				if super := baseTypeName(&e, src); super != "" {
					d.supers = append(d.supers, super)
				}
			}
		}
	}
}

func (f *fileIndex) addGoValues(n *tree_sitter.Node, src []byte, doc string) {
	for _, child := range namedChildren(n) {
		spec := child
		switch spec.Kind() {
		case "const_spec", "var_spec":
			for _, nm := range fieldChildren(&spec, "name") {
				name := nm
				if name.Utf8Text(src) == "_" {
					continue
				}
				d := f.addDecl(&spec, &name, src, engine.KindVariable)
				d.el.Signature = strings.TrimSpace(spec.Utf8Text(src))
				d.doc = doc
				if specDoc := goDoc(&spec, src); specDoc != "" {
					d.doc = specDoc
				}
			}
		case "var_spec_list", "const_spec_list":
			f.addGoValues(&spec, src, doc)
		}
	}
}

// goRef classifies an identifier node as a reference.
func goRef(n *tree_sitter.Node) (ok, member bool) {
	switch n.Kind() {
	case "identifier", "type_identifier":
		return true, false
	case "field_identifier":
		return true, true
	}
	return false, false
}

// collectRefs records every identifier accepted by classify that does not
// name a declaration.
func (f *fileIndex) collectRefs(root *tree_sitter.Node, src []byte, classify func(*tree_sitter.Node) (bool, bool)) {
	names := make(map[int]bool, len(f.decls))
	for _, d := range f.decls {
		names[d.nameStart] = true
	}
	treesitter.Walk(root, func(n *tree_sitter.Node) bool {
		ok, member := classify(n)
		if !ok {
			return true
		}
		start := startOf(n)
		if names[start] {
			return false
		}
		text := n.Utf8Text(src)
		if text == "_" || text == "" {
			return false
		}
		f.refs = append(f.refs, ref{name: text, start: start, end: endOf(n), member: member})
		return false
	})
}
