package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"lspadapter/internal/workspace/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "nested", "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func rng(line uint32) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: line, Character: 2},
		End:   protocol.Position{Line: line + 1, Character: 0},
	}
}

func file(path string, hash uint64) store.FileRecord {
	return store.FileRecord{Path: path, Language: "java", Hash: hash, IndexedAt: time.Unix(1700000000, 0)}
}

func TestReplaceAndQuery(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Replace(file("src/Shape.java", 1), []store.Declaration{
		{Name: "Shape", Kind: protocol.SymbolKindInterface, Range: rng(0)},
		{Name: "area", Kind: protocol.SymbolKindMethod, Container: "Shape", TypeName: "double", Range: rng(1)},
	}))
	require.NoError(t, s.Replace(file("src/Circle.java", ^uint64(0)), []store.Declaration{
		{Name: "Circle", Kind: protocol.SymbolKindClass, Supertypes: []string{"Shape", "Comparable"}, Range: rng(0)},
		{Name: "radius", Kind: protocol.SymbolKindField, Container: "Circle", TypeName: "double", Range: rng(1)},
		{Name: "area", Kind: protocol.SymbolKindMethod, Container: "Circle", Range: rng(2)},
	}))

	rec, err := s.File("src/Circle.java")
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0), rec.Hash)
	assert.Equal(t, "java", rec.Language)
	assert.Equal(t, int64(1700000000), rec.IndexedAt.Unix())

	subs, err := s.Subtypes("Shape")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "Circle", subs[0].Name)
	assert.ElementsMatch(t, []string{"Shape", "Comparable"}, subs[0].Supertypes)
	assert.Equal(t, rng(0), subs[0].Range)

	members, err := s.Members("Circle", protocol.SymbolKindMethod)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "area", members[0].Name)

	areas, err := s.ByName("area")
	require.NoError(t, err)
	assert.Len(t, areas, 2)

	types, err := s.ByName("Shape", protocol.SymbolKindClass, protocol.SymbolKindInterface)
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, "src/Shape.java", types[0].Path)

	inFile, err := s.InFile("src/Circle.java")
	require.NoError(t, err)
	assert.Equal(t, []string{"Circle", "radius", "area"}, names(inFile))

	paths, err := s.Paths()
	require.NoError(t, err)
	assert.Equal(t, []string{"src/Circle.java", "src/Shape.java"}, paths)
}

func names(decls []store.Declaration) []string {
	out := make([]string, len(decls))
	for i, d := range decls {
		out[i] = d.Name
	}
	return out
}

func TestReplaceSwapsDeclarations(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Replace(file("A.java", 1), []store.Declaration{
		{Name: "A", Kind: protocol.SymbolKindClass, Supertypes: []string{"Base"}},
	}))
	require.NoError(t, s.Replace(file("A.java", 2), []store.Declaration{
		{Name: "B", Kind: protocol.SymbolKindClass},
	}))

	got, err := s.InFile("A.java")
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, names(got))
	subs, err := s.Subtypes("Base")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSearchRanksPrefixFirst(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Replace(file("a.go", 1), []store.Declaration{
		{Name: "parseConfig", Kind: protocol.SymbolKindFunction},
		{Name: "ConfigLoader", Kind: protocol.SymbolKindStruct},
		{Name: "Config", Kind: protocol.SymbolKindStruct},
		{Name: "config_100%", Kind: protocol.SymbolKindVariable},
		{Name: "unrelated", Kind: protocol.SymbolKindVariable},
	}))

	got, err := s.Search("config", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Config", "config_100%", "ConfigLoader", "parseConfig"}, names(got))

	got, err = s.Search("config", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.Search("_100%", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"config_100%"}, names(got))
}

func TestDeleteAndMissing(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Replace(file("A.java", 1), []store.Declaration{{Name: "A", Kind: protocol.SymbolKindClass}}))
	require.NoError(t, s.Delete("A.java"))

	_, err := s.File("A.java")
	assert.ErrorIs(t, err, store.ErrNotFound)
	got, err := s.ByName("A")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Replace(file("A.java", 7), nil))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.File("A.java")
	assert.ErrorIs(t, err, store.ErrClosed)

	s, err = store.Open(path)
	require.NoError(t, err)
	defer s.Close()
	rec, err := s.File("A.java")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), rec.Hash)
}
