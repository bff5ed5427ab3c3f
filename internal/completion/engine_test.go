package completion_test

import (
	"context"
	"errors"
	"testing"

	"lspadapter/internal/completion"
	"lspadapter/internal/engine"
	"lspadapter/internal/engine/enginetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

type recorder struct {
	calls []string
}

func (r *recorder) contributor(name string, signal completion.Signal, labels ...string) completion.Contributor {
	return completion.ContributorFunc{
		ID: name,
		Fn: func(ctx context.Context, params *completion.Parameters, sink *completion.Sink) (completion.Signal, error) {
			r.calls = append(r.calls, name)
			for _, l := range labels {
				sink.Add(completion.Candidate{Label: l, Kind: protocol.CompletionItemKindText})
			}
			return signal, nil
		},
	}
}

func document(text string) *enginetest.Document {
	return &enginetest.Document{
		Project: enginetest.NewProject("/work"),
		Rel:     "src/Main.java",
		Lang:    "java",
		Text:    []byte(text),
	}
}

// params places the cursor at the end of text.
func params(text string) *completion.Parameters {
	d := document(text)
	lines := 0
	col := 0
	for _, r := range text {
		if r == '\n' {
			lines++
			col = 0
			continue
		}
		col++
	}
	return completion.NewParameters(d, protocol.Position{Line: protocol.UInteger(lines), Character: protocol.UInteger(col)}, true)
}

func labels(list *protocol.CompletionList) []string {
	out := make([]string, len(list.Items))
	for i, it := range list.Items {
		out[i] = it.Label
	}
	return out
}

func TestStopChainSkipsLaterContributors(t *testing.T) {
	r := &recorder{}
	e := completion.NewEngine(completion.NewResolveCache(4),
		r.contributor("first", completion.Continue, "alpha"),
		r.contributor("second", completion.StopChain, "beta"),
		r.contributor("third", completion.Continue, "gamma"),
	)

	list, err := e.Complete(context.Background(), params(""))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, r.calls)
	assert.Equal(t, []string{"alpha", "beta"}, labels(list))
	assert.False(t, list.IsIncomplete)
}

func TestDuplicatesKeepFirstRank(t *testing.T) {
	r := &recorder{}
	e := completion.NewEngine(completion.NewResolveCache(4),
		r.contributor("a", completion.Continue, "x", "y"),
		r.contributor("b", completion.Continue, "y", "z", "x"),
	)

	list, err := e.Complete(context.Background(), params(""))
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "z"}, labels(list))
	for i, it := range list.Items {
		require.NotNil(t, it.SortText)
		assert.Equal(t, []string{"0", "1", "2"}[i], *it.SortText)
	}
}

func TestPrefixFiltering(t *testing.T) {
	r := &recorder{}
	e := completion.NewEngine(completion.NewResolveCache(4),
		r.contributor("a", completion.Continue, "getValue", "setValue", "GV", "other"),
	)

	list, err := e.Complete(context.Background(), params("obj.gV"))
	require.NoError(t, err)
	assert.Equal(t, []string{"getValue", "GV"}, labels(list))
}

func TestEmptyResults(t *testing.T) {
	list, err := completion.NewEngine(completion.NewResolveCache(4)).Complete(context.Background(), params("pri"))
	require.NoError(t, err)
	assert.NotNil(t, list.Items)
	assert.Empty(t, list.Items)

	r := &recorder{}
	e := completion.NewEngine(completion.NewResolveCache(4), r.contributor("a", completion.Continue, "zzz"))
	list, err = e.Complete(context.Background(), params("pri"))
	require.NoError(t, err)
	assert.Empty(t, list.Items)
}

func TestCompleteAfterResumesChain(t *testing.T) {
	r := &recorder{}
	e := completion.NewEngine(completion.NewResolveCache(4),
		r.contributor("a", completion.Continue, "one"),
		r.contributor("b", completion.Continue, "two"),
		r.contributor("c", completion.Continue, "three"),
	)

	list, err := e.CompleteAfter(context.Background(), params(""), "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, r.calls)
	assert.Equal(t, []string{"two", "three"}, labels(list))
}

func TestCancellationBetweenContributors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ran := []string{}
	e := completion.NewEngine(completion.NewResolveCache(4),
		completion.ContributorFunc{ID: "a", Fn: func(context.Context, *completion.Parameters, *completion.Sink) (completion.Signal, error) {
			ran = append(ran, "a")
			cancel()
			return completion.Continue, nil
		}},
		completion.ContributorFunc{ID: "b", Fn: func(context.Context, *completion.Parameters, *completion.Sink) (completion.Signal, error) {
			ran = append(ran, "b")
			return completion.Continue, nil
		}},
	)

	list, err := e.Complete(ctx, params(""))
	assert.Nil(t, list)
	assert.ErrorIs(t, err, engine.ErrCancelled)
	assert.Equal(t, []string{"a"}, ran)
}

func TestContributorError(t *testing.T) {
	boom := errors.New("index corrupted")
	e := completion.NewEngine(completion.NewResolveCache(4),
		completion.ContributorFunc{ID: "broken", Fn: func(context.Context, *completion.Parameters, *completion.Sink) (completion.Signal, error) {
			return completion.Continue, boom
		}},
	)
	_, err := e.Complete(context.Background(), params(""))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, engine.ErrEngineFailure, engine.Classify(err))
}

func TestResolveTokens(t *testing.T) {
	r := &recorder{}
	e := completion.NewEngine(completion.NewResolveCache(8),
		completion.ContributorFunc{ID: "detailed", Fn: func(_ context.Context, _ *completion.Parameters, sink *completion.Sink) (completion.Signal, error) {
			sink.Add(completion.Candidate{Label: "first", Detail: "int first", Documentation: "The first."})
			sink.Add(completion.Candidate{Label: "second", Detail: "String second"})
			return completion.Continue, nil
		}},
		r.contributor("plain", completion.Continue, "third"),
	)

	list, err := e.Complete(context.Background(), params(""))
	require.NoError(t, err)
	require.Len(t, list.Items, 3)

	for i, it := range list.Items {
		assert.Nil(t, it.Detail, "details are left for resolve")
		idx, err := completion.DecodeResolveIndex(it.Data)
		require.NoError(t, err)
		assert.Equal(t, i, idx.Index)
	}

	resolved, err := e.Resolve(&list.Items[1])
	require.NoError(t, err)
	require.NotNil(t, resolved.Detail)
	assert.Equal(t, "String second", *resolved.Detail)
	assert.Equal(t, "second", resolved.Label)

	resolved, err = e.Resolve(&list.Items[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.MarkupContent{Kind: protocol.MarkupKindMarkdown, Value: "The first."}, resolved.Documentation)
}

func TestRequestIDsIncrease(t *testing.T) {
	e := completion.NewEngine(completion.NewResolveCache(8), (&recorder{}).contributor("a", completion.Continue, "x"))

	var last int64
	for i := 0; i < 5; i++ {
		list, err := e.Complete(context.Background(), params(""))
		require.NoError(t, err)
		idx, err := completion.DecodeResolveIndex(list.Items[0].Data)
		require.NoError(t, err)
		assert.Greater(t, idx.RequestID, last)
		last = idx.RequestID
	}
}

func TestSupersededTokenNotFound(t *testing.T) {
	e := completion.NewEngine(completion.NewResolveCache(8), (&recorder{}).contributor("a", completion.Continue, "x", "y"))

	older, err := e.Complete(context.Background(), params(""))
	require.NoError(t, err)
	newer, err := e.Complete(context.Background(), params(""))
	require.NoError(t, err)

	_, err = e.Resolve(&older.Items[0])
	assert.ErrorIs(t, err, engine.ErrNotFound)

	resolved, err := e.Resolve(&newer.Items[1])
	require.NoError(t, err)
	assert.Equal(t, "y", resolved.Label)
}

func TestSnippetDowngrade(t *testing.T) {
	e := completion.NewEngine(completion.NewResolveCache(8),
		completion.ContributorFunc{ID: "s", Fn: func(_ context.Context, _ *completion.Parameters, sink *completion.Sink) (completion.Signal, error) {
			sink.Add(completion.Candidate{Label: "println", InsertText: "println($1)", Snippet: true})
			return completion.Continue, nil
		}},
	)

	p := params("")
	list, err := e.Complete(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "println($1)", *list.Items[0].InsertText)
	assert.Equal(t, protocol.InsertTextFormatSnippet, *list.Items[0].InsertTextFormat)

	p.Snippets = false
	list, err = e.Complete(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "println", *list.Items[0].InsertText)
	assert.Equal(t, protocol.InsertTextFormatPlainText, *list.Items[0].InsertTextFormat)
}

// A keyword contributor at a modifier position hands its access modifiers
// to a sink that accepts them as-is and ends the chain, so the member
// contributor never runs.
func TestModifierCompletionEndToEnd(t *testing.T) {
	r := &recorder{}
	keywordContributor := completion.ContributorFunc{
		ID: "keyword",
		Fn: func(_ context.Context, _ *completion.Parameters, sink *completion.Sink) (completion.Signal, error) {
			r.calls = append(r.calls, "keyword")
			modifiers := sink.WithMatcher(completion.AcceptAll)
			for _, m := range []string{"private", "protected", "public"} {
				modifiers.Add(completion.Candidate{Label: m, Kind: protocol.CompletionItemKindKeyword})
			}
			return completion.StopChain, nil
		},
	}
	e := completion.NewEngine(completion.NewResolveCache(8),
		keywordContributor,
		r.contributor("member", completion.Continue, "println"),
	)

	list, err := e.Complete(context.Background(), params("class A {\n  pri"))
	require.NoError(t, err)
	assert.Equal(t, []string{"keyword"}, r.calls)
	assert.Equal(t, []string{"private", "protected", "public"}, labels(list))

	var requestID int64
	for i, it := range list.Items {
		idx, err := completion.DecodeResolveIndex(it.Data)
		require.NoError(t, err)
		if i == 0 {
			requestID = idx.RequestID
		}
		assert.Equal(t, completion.ResolveIndex{RequestID: requestID, Index: i}, idx)
	}
}
