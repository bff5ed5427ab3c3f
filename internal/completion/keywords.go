package completion

import (
	"context"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Site classifies the syntactic position of a completion cursor.
type Site int

const (
	SiteUnknown Site = iota
	// SiteDeclaration is where a member or type declaration may start.
	SiteDeclaration
	// SiteStatement is inside a function or method body.
	SiteStatement
	// SiteMemberAccess is right after a "." selector.
	SiteMemberAccess
)

// SiteFunc decides the Site of a cursor.
type SiteFunc func(ctx context.Context, params *Parameters) Site

var keywords = map[string][]string{
	"go": {
		"break", "case", "chan", "const", "continue", "default", "defer",
		"else", "fallthrough", "for", "func", "go", "goto", "if", "import",
		"interface", "map", "package", "range", "return", "select", "struct",
		"switch", "type", "var",
	},
	"java": {
		"abstract", "assert", "boolean", "break", "byte", "case", "catch",
		"char", "class", "continue", "default", "do", "double", "else", "enum",
		"extends", "final", "finally", "float", "for", "if", "implements",
		"import", "instanceof", "int", "interface", "long", "native", "new",
		"package", "private", "protected", "public", "return", "short",
		"static", "strictfp", "super", "switch", "synchronized", "this",
		"throw", "throws", "transient", "try", "void", "volatile", "while",
	},
}

var declarationKeywords = map[string][]string{
	"go": {"const", "func", "import", "type", "var"},
	"java": {
		"abstract", "class", "enum", "final", "interface", "native", "static",
		"synchronized", "transient", "void", "volatile",
	},
}

var accessModifiers = map[string][]string{
	"java": {"private", "protected", "public"},
}

// Keywords proposes language keywords. At a declaration site whose prefix
// matches an access modifier it offers every access modifier, unfiltered,
// and ends the chain.
type Keywords struct {
	site SiteFunc
}

func NewKeywords(site SiteFunc) *Keywords {
	return &Keywords{site: site}
}

func (k *Keywords) Name() string { return "keywords" }

func (k *Keywords) Contribute(ctx context.Context, params *Parameters, sink *Sink) (Signal, error) {
	lang := params.Document.Language()
	site := SiteUnknown
	if k.site != nil {
		site = k.site(ctx, params)
	}

	switch site {
	case SiteMemberAccess:
		return Continue, nil
	case SiteDeclaration:
		modifiers := accessModifiers[lang]
		if params.Prefix != "" && anyMatches(sink.Matcher(), modifiers) {
			// All modifiers are offered regardless of the prefix.
			all := sink.WithMatcher(AcceptAll)
			for _, m := range modifiers {
				all.Add(keyword(m))
			}
			for _, kw := range declarationKeywords[lang] {
				sink.Add(keyword(kw))
			}
			return StopChain, nil
		}
		for _, m := range modifiers {
			sink.Add(keyword(m))
		}
		for _, kw := range declarationKeywords[lang] {
			sink.Add(keyword(kw))
		}
		return Continue, nil
	default:
		for _, kw := range keywords[lang] {
			sink.Add(keyword(kw))
		}
		return Continue, nil
	}
}

func keyword(kw string) Candidate {
	return Candidate{Label: kw, Kind: protocol.CompletionItemKindKeyword, InsertText: kw}
}

func anyMatches(m Matcher, labels []string) bool {
	for _, l := range labels {
		if m.Matches(l) {
			return true
		}
	}
	return false
}
