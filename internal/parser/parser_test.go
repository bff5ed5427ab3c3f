package parser_test

import (
	"context"
	"testing"

	"lspadapter/internal/parser"
	"lspadapter/internal/sitteradapter"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

const goSource = `package main

func main() {
	greet("world")
}

func greet(name string) {}
`

func TestForPath(t *testing.T) {
	lang, ok := parser.ForPath("/src/Main.JAVA")
	assert.True(t, ok)
	assert.Equal(t, parser.Java, lang)

	_, ok = parser.ForPath("README.md")
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{".go", ".java"}, parser.Extensions())
}

func TestQueryCapturesFunctionNames(t *testing.T) {
	p, err := parser.NewParser(parser.Go)
	require.NoError(t, err)
	defer p.Close()

	tree, err := p.Parse(context.Background(), []byte(goSource))
	require.NoError(t, err)

	captures, err := parser.Query(tree.RootNode(), []byte(`(function_declaration name: (identifier) @fn)`), parser.Go, []byte(goSource))
	require.NoError(t, err)
	var names []string
	for _, c := range captures {
		assert.Equal(t, "fn", c.Name)
		names = append(names, c.Node.Content([]byte(goSource)))
	}
	assert.Equal(t, []string{"main", "greet"}, names)
}

func TestQueryRejectsUnknownNodeType(t *testing.T) {
	p, err := parser.NewParser(parser.Java)
	require.NoError(t, err)
	defer p.Close()
	tree, err := p.Parse(context.Background(), []byte("class A {}"))
	require.NoError(t, err)

	_, err = parser.Query(tree.RootNode(), []byte(`(no_such_node) @x`), parser.Java, []byte("class A {}"))
	assert.Error(t, err)
}

func TestIncrementalUpdate(t *testing.T) {
	p, err := parser.NewParser(parser.Go)
	require.NoError(t, err)
	defer p.Close()

	src := []byte(goSource)
	_, err = p.Parse(context.Background(), src)
	require.NoError(t, err)

	edit := protocol.TextEdit{
		Range: protocol.Range{
			Start: protocol.Position{Line: 6, Character: 5},
			End:   protocol.Position{Line: 6, Character: 10},
		},
		NewText: "salute",
	}
	src, input := sitteradapter.ApplyTextEdit(src, edit)
	tree, err := p.Update(context.Background(), []sitter.EditInput{input}, src)
	require.NoError(t, err)
	assert.Same(t, tree, p.Tree())

	captures, err := parser.Query(tree.RootNode(), []byte(`(function_declaration name: (identifier) @fn)`), parser.Go, src)
	require.NoError(t, err)
	require.Len(t, captures, 2)
	assert.Equal(t, "salute", captures[1].Node.Content(src))
}

func TestUpdateWithoutTree(t *testing.T) {
	p, err := parser.NewParser(parser.Go)
	require.NoError(t, err)
	defer p.Close()
	_, err = p.Update(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestUnsupportedLanguage(t *testing.T) {
	_, err := parser.NewParser("cobol")
	assert.Error(t, err)
}

func TestPool(t *testing.T) {
	pool, err := parser.NewPool(2)
	require.NoError(t, err)
	defer pool.Close()

	tree, err := pool.Parse(context.Background(), parser.Java, []byte("class A { void run() {} }"))
	require.NoError(t, err)
	assert.Equal(t, "program", tree.RootNode().Type())

	_, err = pool.Parse(context.Background(), "cobol", nil)
	assert.Error(t, err)
}
