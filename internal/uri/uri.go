// Package uri converts between document URIs as sent by editors and the
// filesystem paths the engine works with.
package uri

import (
	"net/url"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

const filePrefix = "file:///"

var (
	schemeSlashes = regexp.MustCompile(`^file:/+`)
	drivePrefix   = regexp.MustCompile(`^file:///[A-Za-z]:`)
)

// Normalize returns the canonical form of a document URI: percent-escapes
// decoded until none are left, forward slashes only, exactly three slashes
// after "file:" and no trailing slashes. Two URIs name the same document
// iff their normalized forms are equal. Normalize(Normalize(u)) ==
// Normalize(u).
func Normalize(u string) string {
	s := unescape(u)
	s = strings.ReplaceAll(s, `\`, "/")
	s = schemeSlashes.ReplaceAllString(s, filePrefix)
	for strings.HasSuffix(s, "/") && s != filePrefix && s != "/" {
		s = s[:len(s)-1]
	}
	return s
}

// unescape decodes percent-escapes repeatedly, so that "%2541" ends up as
// "A". Input with an invalid escape is returned as it was at that point.
func unescape(s string) string {
	for strings.Contains(s, "%") {
		decoded, err := url.PathUnescape(s)
		if err != nil || decoded == s {
			return s
		}
		s = decoded
	}
	return s
}

// ToFilesystemPath converts a document URI to an OS path. A drive letter
// right after the scheme ("file:///C:/src") yields a drive path, anything
// else an absolute path rooted at "/". Strings without a file scheme are
// treated as paths already.
func ToFilesystemPath(u string) string {
	n := Normalize(u)
	switch {
	case drivePrefix.MatchString(n):
		n = strings.TrimPrefix(n, filePrefix)
	case strings.HasPrefix(n, filePrefix):
		n = "/" + strings.TrimPrefix(n, filePrefix)
	}
	return filepath.FromSlash(n)
}

// FromPath builds a file URI from an absolute filesystem path.
func FromPath(p string) string {
	p = filepath.ToSlash(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

// RelativePath returns the part of file below root, without a leading
// slash. ok is false when file does not live under root. Comparison happens
// on normalized forms and ignores case when caseInsensitive is set.
func RelativePath(root, file string, caseInsensitive bool) (rel string, ok bool) {
	r := Normalize(root)
	f := Normalize(file)

	equal := func(a, b string) bool {
		if caseInsensitive {
			return strings.EqualFold(a, b)
		}
		return a == b
	}

	if equal(r, f) {
		return "", true
	}

	prefix := r
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if len(f) <= len(prefix) || !equal(f[:len(prefix)], prefix) {
		return "", false
	}
	return f[len(prefix):], true
}

// CaseInsensitiveFS reports whether paths on this platform compare without
// regard to case.
func CaseInsensitiveFS() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}
