package workspace

import (
	"lspadapter/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

var goGrammar = &grammar{
	lang:       parser.Go,
	kind:       goKind,
	nameNode:   func(n *sitter.Node) *sitter.Node { return n.ChildByFieldName("name") },
	details:    goDetails,
	locals:     goLocals,
	typeName:   goTypeName,
	valueType:  goValueType,
	dedentCase: true,
	identifiers: map[string]bool{
		"identifier":         true,
		"field_identifier":   true,
		"type_identifier":    true,
		"package_identifier": true,
	},
	statementScopes:   map[string]bool{"block": true},
	declarationScopes: map[string]bool{"source_file": true},
}

func goKind(n *sitter.Node) (protocol.SymbolKind, bool) {
	switch n.Type() {
	case "function_declaration":
		return protocol.SymbolKindFunction, true
	case "method_declaration", "method_elem", "method_spec":
		return protocol.SymbolKindMethod, true
	case "type_spec":
		switch t := n.ChildByFieldName("type"); {
		case t == nil:
			return protocol.SymbolKindClass, true
		case t.Type() == "struct_type":
			return protocol.SymbolKindStruct, true
		case t.Type() == "interface_type":
			return protocol.SymbolKindInterface, true
		}
		return protocol.SymbolKindClass, true
	case "type_alias":
		return protocol.SymbolKindClass, true
	case "field_declaration":
		return protocol.SymbolKindField, true
	case "const_spec":
		return protocol.SymbolKindConstant, goTopLevel(n)
	case "var_spec":
		return protocol.SymbolKindVariable, goTopLevel(n)
	}
	return 0, false
}

// goTopLevel reports whether a var or const spec is declared at package
// level rather than inside a function body.
func goTopLevel(spec *sitter.Node) bool {
	for p := spec.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "source_file":
			return true
		case "block":
			return false
		}
	}
	return false
}

func goDetails(n *sitter.Node, src []byte) (container, typeName string, supertypes []string) {
	switch n.Type() {
	case "method_declaration":
		if params := namedChildren(n.ChildByFieldName("receiver")); len(params) > 0 {
			container = goTypeName(params[0].ChildByFieldName("type"), src)
		}
		typeName = goTypeName(n.ChildByFieldName("result"), src)
	case "function_declaration", "method_elem", "method_spec":
		typeName = goTypeName(n.ChildByFieldName("result"), src)
	case "field_declaration", "const_spec", "var_spec":
		typeName = goTypeName(n.ChildByFieldName("type"), src)
		if typeName == "" {
			if value := n.ChildByFieldName("value"); value != nil && value.NamedChildCount() > 0 {
				typeName = goValueType(value.NamedChild(0), src)
			}
		}
	case "type_spec":
		supertypes = goEmbedded(n.ChildByFieldName("type"), src)
	}
	return container, typeName, supertypes
}

// goEmbedded lists the types embedded in a struct or interface.
func goEmbedded(t *sitter.Node, src []byte) []string {
	if t == nil {
		return nil
	}
	var out []string
	switch t.Type() {
	case "struct_type":
		for _, list := range namedChildren(t) {
			for _, field := range namedChildren(list) {
				if field.Type() == "field_declaration" && field.ChildByFieldName("name") == nil {
					if name := goTypeName(field.ChildByFieldName("type"), src); name != "" {
						out = append(out, name)
					}
				}
			}
		}
	case "interface_type":
		for _, elem := range namedChildren(t) {
			switch elem.Type() {
			case "type_elem", "constraint_elem":
				for _, typ := range namedChildren(elem) {
					if name := goTypeName(typ, src); name != "" {
						out = append(out, name)
					}
				}
			case "type_identifier", "qualified_type":
				out = append(out, goTypeName(elem, src))
			}
		}
	}
	return out
}

func goLocals(n *sitter.Node) []local {
	switch n.Type() {
	case "var_spec", "const_spec":
		var values []*sitter.Node
		if v := n.ChildByFieldName("value"); v != nil {
			values = namedChildren(v)
		}
		typ := n.ChildByFieldName("type")
		var out []local
		for i, name := range fieldChildren(n, "name") {
			l := local{name: name, typ: typ}
			if i < len(values) {
				l.value = values[i]
			}
			out = append(out, l)
		}
		return out
	case "short_var_declaration":
		left := namedChildren(n.ChildByFieldName("left"))
		right := namedChildren(n.ChildByFieldName("right"))
		var out []local
		for i, name := range left {
			if name.Type() != "identifier" {
				continue
			}
			l := local{name: name}
			if i < len(right) && len(left) == len(right) {
				l.value = right[i]
			}
			out = append(out, l)
		}
		return out
	case "parameter_declaration", "variadic_parameter_declaration":
		typ := n.ChildByFieldName("type")
		var out []local
		for _, name := range fieldChildren(n, "name") {
			out = append(out, local{name: name, typ: typ})
		}
		return out
	case "range_clause":
		var out []local
		for _, name := range namedChildren(n.ChildByFieldName("left")) {
			if name.Type() == "identifier" {
				out = append(out, local{name: name})
			}
		}
		return out
	}
	return nil
}

func goTypeName(t *sitter.Node, src []byte) string {
	if t == nil {
		return ""
	}
	switch t.Type() {
	case "type_identifier":
		return t.Content(src)
	case "qualified_type":
		return goTypeName(t.ChildByFieldName("name"), src)
	case "generic_type":
		return goTypeName(t.ChildByFieldName("type"), src)
	case "pointer_type", "parenthesized_type":
		if t.NamedChildCount() > 0 {
			return goTypeName(t.NamedChild(0), src)
		}
	case "slice_type", "array_type", "implicit_length_array_type":
		return goTypeName(t.ChildByFieldName("element"), src)
	case "map_type", "channel_type":
		return goTypeName(t.ChildByFieldName("value"), src)
	}
	return ""
}

func goValueType(v *sitter.Node, src []byte) string {
	if v == nil {
		return ""
	}
	switch v.Type() {
	case "composite_literal":
		return goTypeName(v.ChildByFieldName("type"), src)
	case "unary_expression":
		return goValueType(v.ChildByFieldName("operand"), src)
	case "parenthesized_expression":
		if v.NamedChildCount() > 0 {
			return goValueType(v.NamedChild(0), src)
		}
	}
	return ""
}
