package parser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// Capture is one node captured by a query.
type Capture struct {
	Name string
	Node *sitter.Node
}

// Query runs a tree-sitter query below root, applying predicate filtering,
// and returns every capture in match order.
func Query(root *sitter.Node, pattern []byte, lang Language, source []byte) ([]Capture, error) {
	q, err := sitter.NewQuery(pattern, lang.Grammar())
	if err != nil {
		return nil, fmt.Errorf("compile %s query: %w", lang, err)
	}
	defer q.Close()
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, root)

	var captures []Capture
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		m = qc.FilterPredicates(m, source)
		for _, c := range m.Captures {
			captures = append(captures, Capture{Name: q.CaptureNameForId(c.Index), Node: c.Node})
		}
	}
	return captures, nil
}

// Parser keeps the tree of one open document so edits can be reparsed
// incrementally.
type Parser struct {
	lang   Language
	parser *sitter.Parser
	tree   *sitter.Tree
	mu     sync.Mutex
}

func NewParser(lang Language) (*Parser, error) {
	grammar := lang.Grammar()
	if grammar == nil {
		return nil, fmt.Errorf("no grammar for language %q", lang)
	}
	p := sitter.NewParser()
	p.SetLanguage(grammar)
	return &Parser{lang: lang, parser: p}, nil
}

func (p *Parser) Language() Language { return p.lang }

// Parse replaces the tree with a full parse of source.
func (p *Parser) Parse(ctx context.Context, source []byte) (*sitter.Tree, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", p.lang, err)
	}
	p.tree = tree
	return tree, nil
}

// Update applies edits to the current tree and reparses source, which must
// already contain them.
func (p *Parser) Update(ctx context.Context, edits []sitter.EditInput, source []byte) (*sitter.Tree, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tree == nil {
		return nil, errors.New("no tree available to update")
	}
	for _, edit := range edits {
		p.tree.Edit(edit)
	}
	tree, err := p.parser.ParseCtx(ctx, p.tree, source)
	if err != nil {
		return nil, fmt.Errorf("reparse %s: %w", p.lang, err)
	}
	p.tree = tree
	return tree, nil
}

// Tree returns the latest tree, or nil before the first parse.
func (p *Parser) Tree() *sitter.Tree {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tree
}

// Close frees the parser. Trees it produced stay usable.
func (p *Parser) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.parser != nil {
		p.parser.Close()
		p.parser = nil
	}
	p.tree = nil
	return nil
}

// Pool hands out parsers for one-shot parses, n per language.
type Pool struct {
	pools map[Language]chan *Parser
}

func NewPool(n int) (*Pool, error) {
	if n < 1 {
		n = 1
	}
	pp := &Pool{pools: make(map[Language]chan *Parser, len(grammars))}
	for lang := range grammars {
		ch := make(chan *Parser, n)
		for i := 0; i < n; i++ {
			p, err := NewParser(lang)
			if err != nil {
				pp.Close()
				return nil, err
			}
			ch <- p
		}
		pp.pools[lang] = ch
	}
	return pp, nil
}

// Parse parses source with a pooled parser. It blocks while every parser
// of lang is busy.
func (pp *Pool) Parse(ctx context.Context, lang Language, source []byte) (*sitter.Tree, error) {
	ch, ok := pp.pools[lang]
	if !ok {
		return nil, fmt.Errorf("no grammar for language %q", lang)
	}
	var p *Parser
	select {
	case p = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { ch <- p }()
	return p.Parse(ctx, source)
}

// Close releases all parsers. The pool must not be used afterwards.
func (pp *Pool) Close() error {
	for _, ch := range pp.pools {
		close(ch)
		for p := range ch {
			p.Close()
		}
	}
	return nil
}
