package symbols_test

import (
	"context"
	"testing"

	"lspadapter/internal/engine"
	"lspadapter/internal/engine/enginetest"
	"lspadapter/internal/symbols"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

var N = enginetest.N

func names(syms []symbols.Symbol) []string {
	out := make([]string, len(syms))
	for i, s := range syms {
		out[i] = s.Name
	}
	return out
}

func container(s symbols.Symbol) string {
	if s.ContainerName == nil {
		return "<nil>"
	}
	return *s.ContainerName
}

func TestNestedContainers(t *testing.T) {
	root := N(protocol.SymbolKindFile, "Main.java", 0,
		N(protocol.SymbolKindFunction, "outer", 10,
			N(0, "", 15, // block
				N(protocol.SymbolKindClass, "Local", 20,
					N(0, "", 25,
						N(protocol.SymbolKindMethod, "run", 30),
					),
				),
			),
		),
	)

	syms, err := symbols.Extract(context.Background(), root, &enginetest.Classifier{})
	require.NoError(t, err)
	require.Equal(t, []string{"outer", "Local", "run"}, names(syms))

	assert.Equal(t, "<nil>", container(syms[0]))
	assert.Equal(t, "outer", container(syms[1]))
	assert.Equal(t, "Local", container(syms[2]))

	assert.Equal(t, protocol.SymbolKindFunction, syms[0].Kind)
	assert.Equal(t, protocol.SymbolKindClass, syms[1].Kind)
	assert.Equal(t, protocol.SymbolKindMethod, syms[2].Kind)
}

func TestRootIsNotASymbol(t *testing.T) {
	root := N(protocol.SymbolKindFile, "Main.java", 0,
		N(protocol.SymbolKindClass, "Main", 0),
	)
	syms, err := symbols.Extract(context.Background(), root, &enginetest.Classifier{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Main"}, names(syms))
	assert.Nil(t, syms[0].ContainerName)
}

func TestSortedByStartOffset(t *testing.T) {
	root := N(0, "", 0,
		N(protocol.SymbolKindClass, "Late", 50,
			N(protocol.SymbolKindField, "f", 55),
		),
		N(protocol.SymbolKindClass, "Early", 5),
		N(protocol.SymbolKindFunction, "sameA", 30),
		N(protocol.SymbolKindFunction, "sameB", 30),
	)

	syms, err := symbols.Extract(context.Background(), root, &enginetest.Classifier{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Early", "sameA", "sameB", "Late", "f"}, names(syms))
	assert.Equal(t, "Late", container(syms[4]))
}

func TestUnnamedNodesAreSkipped(t *testing.T) {
	root := N(0, "", 0,
		N(protocol.SymbolKindClass, "", 1, // anonymous class
			N(protocol.SymbolKindMethod, "call", 2),
		),
		N(protocol.SymbolKindClass, "Outer", 10,
			N(protocol.SymbolKindClass, "", 11,
				N(protocol.SymbolKindMethod, "inner", 12),
			),
		),
	)
	syms, err := symbols.Extract(context.Background(), root, &enginetest.Classifier{})
	require.NoError(t, err)
	assert.Equal(t, []string{"call", "Outer", "inner"}, names(syms))
	assert.Equal(t, "<nil>", container(syms[0]))
	assert.Equal(t, "Outer", container(syms[2]))
}

func TestEmptyDocument(t *testing.T) {
	syms, err := symbols.Extract(context.Background(), N(0, "", 0), &enginetest.Classifier{})
	require.NoError(t, err)
	assert.Empty(t, syms)
}

func TestCancellationMidTraversal(t *testing.T) {
	children := make([]*enginetest.Node, 20)
	for i := range children {
		children[i] = N(protocol.SymbolKindFunction, "f", i)
	}
	root := N(0, "", 0, children...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &enginetest.Classifier{OnVisit: func(n int) {
		if n == 5 {
			cancel()
		}
	}}

	syms, err := symbols.Extract(ctx, root, c)
	assert.ErrorIs(t, err, engine.ErrCancelled)
	assert.Nil(t, syms)
	assert.EqualValues(t, 5, c.Visited.Load(), "traversal stops at the next node")
}

func TestToSymbolInformation(t *testing.T) {
	root := N(0, "", 0,
		N(protocol.SymbolKindClass, "A", 3,
			N(protocol.SymbolKindMethod, "m", 4),
		),
	)
	syms, err := symbols.Extract(context.Background(), root, &enginetest.Classifier{})
	require.NoError(t, err)

	info := symbols.ToSymbolInformation("file:///x/A.java", syms)
	require.Len(t, info, 2)
	assert.Equal(t, "file:///x/A.java", info[1].Location.URI)
	assert.Equal(t, protocol.UInteger(4), info[1].Location.Range.Start.Line)
	require.NotNil(t, info[1].ContainerName)
	assert.Equal(t, "A", *info[1].ContainerName)
	assert.Nil(t, info[0].ContainerName)
}
