// Package completion merges candidates from an ordered chain of
// contributors into one ranked completion response.
package completion

import (
	"context"
	"strconv"
	"sync/atomic"

	"lspadapter/internal/engine"
	"lspadapter/internal/metrics"

	"github.com/pkg/errors"
	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

var log = commonlog.GetLogger("lspadapter.completion")

// requestIDs is shared by every Engine in the process so that resolve
// tokens never repeat.
var requestIDs atomic.Int64

// Engine runs a fixed list of contributors in order.
type Engine struct {
	contributors []Contributor
	cache        *ResolveCache
}

func NewEngine(cache *ResolveCache, contributors ...Contributor) *Engine {
	return &Engine{contributors: contributors, cache: cache}
}

// Contributors returns the chain in priority order.
func (e *Engine) Contributors() []Contributor {
	return e.contributors
}

// Complete runs the whole chain.
func (e *Engine) Complete(ctx context.Context, params *Parameters) (*protocol.CompletionList, error) {
	return e.CompleteAfter(ctx, params, "")
}

// CompleteAfter runs the chain starting one past the contributor named
// after. An empty or unknown name starts at the beginning.
func (e *Engine) CompleteAfter(ctx context.Context, params *Parameters, after string) (*protocol.CompletionList, error) {
	id := requestIDs.Add(1)

	start := 0
	if after != "" {
		for i, c := range e.contributors {
			if c.Name() == after {
				start = i + 1
				break
			}
		}
	}

	sink := newSink(NewPrefixMatcher(params.Prefix))
	for _, c := range e.contributors[start:] {
		if err := engine.CheckCancelled(ctx); err != nil {
			return nil, err
		}
		signal, err := c.Contribute(ctx, params, sink)
		if err != nil {
			return nil, errors.Wrapf(err, "contributor %s", c.Name())
		}
		if signal == StopChain {
			log.Debugf("completion %d: %s stopped the chain", id, c.Name())
			break
		}
	}
	if err := engine.CheckCancelled(ctx); err != nil {
		return nil, err
	}

	candidates := sink.set.items
	items := make([]protocol.CompletionItem, len(candidates))
	for i, c := range candidates {
		items[i] = summarize(c, ResolveIndex{RequestID: id, Index: i}, params.Snippets)
	}
	e.cache.Put(params.Document.URI(), id, candidates)
	metrics.CompletionCandidates.Observe(float64(len(items)))

	return &protocol.CompletionList{IsIncomplete: false, Items: items}, nil
}

// Resolve fills in the details of an item from an earlier response.
func (e *Engine) Resolve(item *protocol.CompletionItem) (*protocol.CompletionItem, error) {
	idx, err := DecodeResolveIndex(item.Data)
	if err != nil {
		return nil, err
	}
	c, err := e.cache.Lookup(idx)
	if err != nil {
		return nil, err
	}

	resolved := *item
	if c.Detail != "" {
		resolved.Detail = &c.Detail
	}
	if c.Documentation != "" {
		resolved.Documentation = protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: c.Documentation,
		}
	}
	return &resolved, nil
}

// Cache returns the resolve cache the engine writes to.
func (e *Engine) Cache() *ResolveCache {
	return e.cache
}

func summarize(c Candidate, idx ResolveIndex, snippets bool) protocol.CompletionItem {
	kind := c.Kind
	sortText := strconv.Itoa(idx.Index)
	item := protocol.CompletionItem{
		Label:    c.Label,
		SortText: &sortText,
		Data:     idx,
	}
	if kind != 0 {
		item.Kind = &kind
	}

	insert := c.InsertText
	format := protocol.InsertTextFormatPlainText
	switch {
	case insert == "":
	case c.Snippet && snippets:
		format = protocol.InsertTextFormatSnippet
	case c.Snippet:
		insert = c.Label
	}
	if insert != "" {
		item.InsertText = &insert
		item.InsertTextFormat = &format
	}
	return item
}
