package manager_test

import (
	"context"
	"path/filepath"
	"testing"

	"lspadapter/internal/manager"
	"lspadapter/internal/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func TestOpenParsesKnownLanguages(t *testing.T) {
	dm := manager.NewDocumentManager()
	defer dm.CloseAll()
	ctx := context.Background()

	require.NoError(t, dm.Open(ctx, "/p/A.java", 1, []byte("class A {}")))
	require.NoError(t, dm.Open(ctx, "/p/notes.txt", 1, []byte("hello")))

	snap, ok := dm.Get("/p/A.java")
	require.True(t, ok)
	assert.Equal(t, parser.Java, snap.Language)
	require.NotNil(t, snap.Tree)
	assert.Equal(t, "program", snap.Tree.RootNode().Type())
	assert.NotNil(t, snap.Guard)

	snap, ok = dm.Get("/p/./notes.txt")
	require.True(t, ok)
	assert.Nil(t, snap.Tree)
	assert.Equal(t, "hello", string(snap.Content))

	assert.Equal(t, []string{filepath.Clean("/p/A.java"), filepath.Clean("/p/notes.txt")}, dm.Paths())
}

func TestApplyEditsIsSequential(t *testing.T) {
	dm := manager.NewDocumentManager()
	defer dm.CloseAll()
	ctx := context.Background()
	require.NoError(t, dm.Open(ctx, "/p/main.go", 1, []byte("package main\n")))
	before, _ := dm.Get("/p/main.go")

	at := func(line, char uint32) protocol.Range {
		p := protocol.Position{Line: line, Character: char}
		return protocol.Range{Start: p, End: p}
	}
	err := dm.ApplyEdits(ctx, "/p/main.go", 2, []protocol.TextEdit{
		{Range: at(1, 0), NewText: "func run() {}\n"},
		{Range: at(1, 5), NewText: "x"},
	})
	require.NoError(t, err)

	snap, _ := dm.Get("/p/main.go")
	assert.Equal(t, "package main\nfunc xrun() {}\n", string(snap.Content))
	assert.Equal(t, protocol.Integer(2), snap.Version)
	assert.NotSame(t, before.Guard, snap.Guard)
	assert.Equal(t, "package main\n", string(before.Content))

	fn := snap.Tree.RootNode().NamedChild(1)
	require.NotNil(t, fn)
	assert.Equal(t, "function_declaration", fn.Type())
	assert.Equal(t, "xrun", fn.ChildByFieldName("name").Content(snap.Content))
}

func TestReplaceAndRelease(t *testing.T) {
	dm := manager.NewDocumentManager()
	ctx := context.Background()

	assert.ErrorIs(t, dm.Replace(ctx, "/p/a.go", 1, nil), manager.ErrNotOpen)
	assert.ErrorIs(t, dm.ApplyEdits(ctx, "/p/a.go", 1, nil), manager.ErrNotOpen)

	require.NoError(t, dm.Open(ctx, "/p/a.go", 1, []byte("package a")))
	require.NoError(t, dm.Replace(ctx, "/p/a.go", 3, []byte("package b")))
	snap, _ := dm.Get("/p/a.go")
	assert.Equal(t, "package b", string(snap.Content))
	assert.Equal(t, protocol.Integer(3), snap.Version)

	dm.Release("/p/a.go")
	_, ok := dm.Get("/p/a.go")
	assert.False(t, ok)
	assert.NoError(t, dm.CloseAll())
}
