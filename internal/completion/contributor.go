package completion

import (
	"context"

	"lspadapter/internal/engine"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Signal tells the chain whether later contributors should run.
type Signal int

const (
	Continue Signal = iota
	StopChain
)

// Candidate is one proposal. Candidates are compared structurally, so two
// contributors emitting the same value yield a single entry.
type Candidate struct {
	Label         string
	Kind          protocol.CompletionItemKind
	Detail        string
	Documentation string
	InsertText    string
	Snippet       bool
}

// Parameters describe the cursor a completion was requested at.
type Parameters struct {
	Document engine.Document
	Position protocol.Position
	// Offset is the byte offset of the cursor in the document content.
	Offset int
	// Prefix is the identifier text right before the cursor.
	Prefix string
	// Snippets is set when the client accepts snippet insert text.
	Snippets bool
}

// NewParameters derives offset and prefix for pos in d.
func NewParameters(d engine.Document, pos protocol.Position, snippets bool) *Parameters {
	content := d.Content()
	offset := pos.IndexIn(string(content))
	return &Parameters{
		Document: d,
		Position: pos,
		Offset:   offset,
		Prefix:   identifierPrefix(content, offset),
		Snippets: snippets,
	}
}

// PrecedingRune returns the rune before the typed prefix, or 0.
func (p *Parameters) PrecedingRune() rune {
	content := p.Document.Content()
	i := p.Offset - len(p.Prefix)
	for i > 0 {
		i--
		c := content[i]
		if c != ' ' && c != '\t' {
			return rune(c)
		}
	}
	return 0
}

// Contributor proposes candidates for a cursor. Returning StopChain keeps
// every later contributor from running.
type Contributor interface {
	Name() string
	Contribute(ctx context.Context, params *Parameters, sink *Sink) (Signal, error)
}

// ContributorFunc adapts a function to Contributor.
type ContributorFunc struct {
	ID string
	Fn func(ctx context.Context, params *Parameters, sink *Sink) (Signal, error)
}

func (f ContributorFunc) Name() string { return f.ID }

func (f ContributorFunc) Contribute(ctx context.Context, params *Parameters, sink *Sink) (Signal, error) {
	return f.Fn(ctx, params, sink)
}

// resultSet keeps candidates in first-seen order without duplicates.
type resultSet struct {
	seen  map[Candidate]struct{}
	items []Candidate
}

func newResultSet() *resultSet {
	return &resultSet{seen: make(map[Candidate]struct{})}
}

func (s *resultSet) add(c Candidate) bool {
	if _, ok := s.seen[c]; ok {
		return false
	}
	s.seen[c] = struct{}{}
	s.items = append(s.items, c)
	return true
}

// Sink collects the candidates of one completion request.
type Sink struct {
	matcher Matcher
	set     *resultSet
}

func newSink(m Matcher) *Sink {
	return &Sink{matcher: m, set: newResultSet()}
}

// Matcher returns the matcher Add filters with.
func (s *Sink) Matcher() Matcher { return s.matcher }

// WithMatcher returns a sink that filters with m and shares this sink's
// results.
func (s *Sink) WithMatcher(m Matcher) *Sink {
	return &Sink{matcher: m, set: s.set}
}

// Add records c if its label matches. It reports whether c is now part of
// the result, which is false for duplicates.
func (s *Sink) Add(c Candidate) bool {
	if !s.matcher.Matches(c.Label) {
		return false
	}
	return s.set.add(c)
}

// Len returns the number of distinct candidates collected so far.
func (s *Sink) Len() int { return len(s.set.items) }
