package completion_test

import (
	"encoding/json"
	"testing"

	"lspadapter/internal/completion"
	"lspadapter/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidates(labels ...string) []completion.Candidate {
	out := make([]completion.Candidate, len(labels))
	for i, l := range labels {
		out[i] = completion.Candidate{Label: l}
	}
	return out
}

func TestResolveCacheLookup(t *testing.T) {
	c := completion.NewResolveCache(4)
	c.Put("file:///a.go", 7, candidates("x", "y", "z"))

	got, err := c.Lookup(completion.ResolveIndex{RequestID: 7, Index: 2})
	require.NoError(t, err)
	assert.Equal(t, "z", got.Label)

	_, err = c.Lookup(completion.ResolveIndex{RequestID: 7, Index: 3})
	assert.ErrorIs(t, err, engine.ErrNotFound)
	_, err = c.Lookup(completion.ResolveIndex{RequestID: 8, Index: 0})
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestResolveCacheSupersedesPerDocument(t *testing.T) {
	c := completion.NewResolveCache(4)
	c.Put("file:///a.go", 1, candidates("old"))
	c.Put("file:///b.go", 2, candidates("other"))
	c.Put("file:////a.go/", 3, candidates("new"))

	_, err := c.Lookup(completion.ResolveIndex{RequestID: 1})
	assert.ErrorIs(t, err, engine.ErrNotFound)

	got, err := c.Lookup(completion.ResolveIndex{RequestID: 2})
	require.NoError(t, err)
	assert.Equal(t, "other", got.Label)

	got, err = c.Lookup(completion.ResolveIndex{RequestID: 3})
	require.NoError(t, err)
	assert.Equal(t, "new", got.Label)
	assert.Equal(t, 2, c.Len())
}

func TestResolveCacheKeepsNewerRequestOnLatePut(t *testing.T) {
	c := completion.NewResolveCache(4)
	c.Put("file:///a.go", 6, candidates("newer"))
	c.Put("file:///a.go", 5, candidates("older"))

	got, err := c.Lookup(completion.ResolveIndex{RequestID: 6})
	require.NoError(t, err)
	assert.Equal(t, "newer", got.Label)

	_, err = c.Lookup(completion.ResolveIndex{RequestID: 5})
	assert.ErrorIs(t, err, engine.ErrNotFound)
	assert.Equal(t, 1, c.Len())
}

func TestResolveCacheCapacity(t *testing.T) {
	c := completion.NewResolveCache(2)
	c.Put("file:///a.go", 1, candidates("a"))
	c.Put("file:///b.go", 2, candidates("b"))
	c.Put("file:///c.go", 3, candidates("c"))

	assert.Equal(t, 2, c.Len())
	_, err := c.Lookup(completion.ResolveIndex{RequestID: 1})
	assert.ErrorIs(t, err, engine.ErrNotFound)

	// the evicted document no longer points at a stale id
	c.Put("file:///a.go", 4, candidates("a2"))
	assert.Equal(t, 2, c.Len())
	_, err = c.Lookup(completion.ResolveIndex{RequestID: 3})
	require.NoError(t, err)
}

func TestResolveCacheForget(t *testing.T) {
	c := completion.NewResolveCache(4)
	c.Put("file:///a.go", 1, candidates("a"))
	c.Forget("file:///a.go")
	assert.Equal(t, 0, c.Len())
}

func TestDecodeResolveIndex(t *testing.T) {
	// As decoded by encoding/json into an `any` field.
	var data any
	require.NoError(t, json.Unmarshal([]byte(`{"completionId": 12, "index": 3}`), &data))

	idx, err := completion.DecodeResolveIndex(data)
	require.NoError(t, err)
	assert.Equal(t, completion.ResolveIndex{RequestID: 12, Index: 3}, idx)

	_, err = completion.DecodeResolveIndex(nil)
	assert.ErrorIs(t, err, engine.ErrNotFound)
	_, err = completion.DecodeResolveIndex("garbage")
	assert.ErrorIs(t, err, engine.ErrNotFound)
	_, err = completion.DecodeResolveIndex(map[string]any{"index": 1})
	assert.ErrorIs(t, err, engine.ErrNotFound)
}
