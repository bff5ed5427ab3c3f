package workspace

import (
	"lspadapter/internal/parser"

	sitter "github.com/smacker/go-tree-sitter"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

var javaGrammar = &grammar{
	lang:      parser.Java,
	kind:      javaKind,
	nameNode:  javaNameNode,
	details:   javaDetails,
	locals:    javaLocals,
	typeName:  javaTypeName,
	valueType: javaValueType,
	identifiers: map[string]bool{
		"identifier":      true,
		"type_identifier": true,
	},
	statementScopes: map[string]bool{
		"block":            true,
		"constructor_body": true,
		"switch_block":     true,
	},
	declarationScopes: map[string]bool{
		"program":                true,
		"class_body":             true,
		"interface_body":         true,
		"enum_body":              true,
		"enum_body_declarations": true,
		"annotation_type_body":   true,
	},
}

var javaKinds = map[string]protocol.SymbolKind{
	"class_declaration":           protocol.SymbolKindClass,
	"record_declaration":          protocol.SymbolKindClass,
	"interface_declaration":       protocol.SymbolKindInterface,
	"annotation_type_declaration": protocol.SymbolKindInterface,
	"enum_declaration":            protocol.SymbolKindEnum,
	"method_declaration":          protocol.SymbolKindMethod,
	"constructor_declaration":     protocol.SymbolKindConstructor,
	"field_declaration":           protocol.SymbolKindField,
	"constant_declaration":        protocol.SymbolKindConstant,
	"enum_constant":               protocol.SymbolKindEnumMember,
}

func javaKind(n *sitter.Node) (protocol.SymbolKind, bool) {
	kind, ok := javaKinds[n.Type()]
	return kind, ok
}

func javaNameNode(n *sitter.Node) *sitter.Node {
	switch n.Type() {
	case "field_declaration", "constant_declaration":
		if d := n.ChildByFieldName("declarator"); d != nil {
			return d.ChildByFieldName("name")
		}
		return nil
	}
	return n.ChildByFieldName("name")
}

func javaDetails(n *sitter.Node, src []byte) (container, typeName string, supertypes []string) {
	switch n.Type() {
	case "field_declaration", "constant_declaration", "method_declaration":
		typeName = javaTypeName(n.ChildByFieldName("type"), src)
	case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
		for _, c := range namedChildren(n) {
			switch c.Type() {
			case "superclass":
				for _, t := range namedChildren(c) {
					supertypes = appendName(supertypes, javaTypeName(t, src))
				}
			case "super_interfaces", "extends_interfaces":
				for _, list := range namedChildren(c) {
					for _, t := range namedChildren(list) {
						supertypes = appendName(supertypes, javaTypeName(t, src))
					}
				}
			}
		}
	}
	return "", typeName, supertypes
}

func appendName(names []string, name string) []string {
	if name == "" {
		return names
	}
	return append(names, name)
}

func javaLocals(n *sitter.Node) []local {
	switch n.Type() {
	case "local_variable_declaration", "field_declaration", "constant_declaration":
		typ := n.ChildByFieldName("type")
		var out []local
		for _, d := range fieldChildren(n, "declarator") {
			out = append(out, local{name: d.ChildByFieldName("name"), typ: typ, value: d.ChildByFieldName("value")})
		}
		return out
	case "formal_parameter", "resource", "enhanced_for_statement":
		l := local{name: n.ChildByFieldName("name"), typ: n.ChildByFieldName("type")}
		if n.Type() == "resource" {
			l.value = n.ChildByFieldName("value")
		}
		return []local{l}
	case "catch_formal_parameter":
		l := local{name: n.ChildByFieldName("name")}
		for _, c := range namedChildren(n) {
			if c.Type() == "catch_type" && c.NamedChildCount() > 0 {
				l.typ = c.NamedChild(0)
			}
		}
		return []local{l}
	}
	return nil
}

func javaTypeName(t *sitter.Node, src []byte) string {
	if t == nil {
		return ""
	}
	switch t.Type() {
	case "type_identifier":
		if name := t.Content(src); name != "var" {
			return name
		}
	case "integral_type", "floating_point_type", "boolean_type", "void_type":
		return t.Content(src)
	case "scoped_type_identifier", "annotated_type":
		if n := t.NamedChildCount(); n > 0 {
			return javaTypeName(t.NamedChild(int(n)-1), src)
		}
	case "generic_type":
		if t.NamedChildCount() > 0 {
			return javaTypeName(t.NamedChild(0), src)
		}
	case "array_type":
		return javaTypeName(t.ChildByFieldName("element"), src)
	}
	return ""
}

func javaValueType(v *sitter.Node, src []byte) string {
	if v == nil {
		return ""
	}
	switch v.Type() {
	case "object_creation_expression", "array_creation_expression", "cast_expression":
		return javaTypeName(v.ChildByFieldName("type"), src)
	case "parenthesized_expression":
		if v.NamedChildCount() > 0 {
			return javaValueType(v.NamedChild(0), src)
		}
	}
	return ""
}
