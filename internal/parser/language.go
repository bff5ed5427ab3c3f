package parser

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
)

// Language names a supported grammar. Its value doubles as the language id
// reported for documents.
type Language string

const (
	Go   Language = "go"
	Java Language = "java"
)

var grammars = map[Language]*sitter.Language{
	Go:   golang.GetLanguage(),
	Java: java.GetLanguage(),
}

var extensions = map[string]Language{
	".go":   Go,
	".java": Java,
}

// ForPath picks the language of a file by its extension.
func ForPath(path string) (Language, bool) {
	lang, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// Grammar returns the tree-sitter language, or nil when unsupported.
func (l Language) Grammar() *sitter.Language {
	return grammars[l]
}

// Extensions lists the file extensions with a grammar.
func Extensions() []string {
	out := make([]string, 0, len(extensions))
	for ext := range extensions {
		out = append(out, ext)
	}
	return out
}
