package uri_test

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"lspadapter/internal/uri"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"canonical", "file:///home/user/project", "file:///home/user/project"},
		{"single slash", "file:/home/user/project", "file:///home/user/project"},
		{"many slashes", "file://///home/user/project", "file:///home/user/project"},
		{"trailing slash", "file:///home/user/project/", "file:///home/user/project"},
		{"percent escapes", "file:///home/user/my%20project/A%2Bb.java", "file:///home/user/my project/A+b.java"},
		{"backslashes", `file:///C:\Users\dev\src`, "file:///C:/Users/dev/src"},
		{"encoded drive", "file:///c%3A/work", "file:///c:/work"},
		{"bare root", "file:///", "file:///"},
		{"repeated trailing slashes", "file:///a/b//", "file:///a/b"},
		{"double encoded", "file:///a%2541", "file:///aA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, uri.Normalize(tt.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"file:///home/user/project/",
		"file:/a/b/c",
		`file://C:\x\y\`,
		"file:///tmp/with%20space",
		"file:///",
		"untitled:Untitled-1",
		"file:///a/b//",
		"file:///a%2541",
		`file:\\\a\b\\`,
	}
	for _, in := range inputs {
		once := uri.Normalize(in)
		assert.Equal(t, once, uri.Normalize(once), "input %q", in)
	}
}

func TestNormalizeEquivalentRepresentations(t *testing.T) {
	forms := []string{
		"file:///home/user/src/Main.java",
		"file:/home/user/src/Main.java",
		"file:////home/user/src/Main.java",
		`file:///home\user\src\Main.java`,
		"file:///home/user/src%2FMain.java",
	}
	for _, f := range forms {
		assert.Equal(t, forms[0], uri.Normalize(f), "form %q", f)
	}
}

func TestToFilesystemPath(t *testing.T) {
	assert.Equal(t, filepath.FromSlash("/home/user/project"), uri.ToFilesystemPath("file:///home/user/project/"))
	assert.Equal(t, filepath.FromSlash("C:/Users/dev"), uri.ToFilesystemPath(`file:/C:\Users\dev`))
	assert.Equal(t, filepath.FromSlash("/tmp/a b"), uri.ToFilesystemPath("file:///tmp/a%20b"))
}

func TestFromPathRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix paths only")
	}
	p := "/tmp/some dir/File.go"
	assert.Equal(t, p, uri.ToFilesystemPath(uri.FromPath(p)))
	assert.True(t, strings.HasPrefix(uri.FromPath(p), "file:///"))
}

func TestRelativePath(t *testing.T) {
	root := "file:///home/user/project/"

	rel, ok := uri.RelativePath(root, "file:///home/user/project/src/main/App.java", false)
	assert.True(t, ok)
	assert.Equal(t, "src/main/App.java", rel)

	_, ok = uri.RelativePath(root, "file:///home/user/other/App.java", false)
	assert.False(t, ok)

	_, ok = uri.RelativePath(root, "file:///home/user/project-two/App.java", false)
	assert.False(t, ok, "sibling with shared name prefix is not inside root")

	rel, ok = uri.RelativePath(root, "file:///home/user/project", false)
	assert.True(t, ok)
	assert.Equal(t, "", rel)
}

func TestRelativePathDeep(t *testing.T) {
	root := "file:///r"
	segments := []string{}
	for i := 0; i < 40; i++ {
		segments = append(segments, "d")
		want := strings.Join(segments, "/") + "/f.go"
		rel, ok := uri.RelativePath(root, root+"/"+want, false)
		assert.True(t, ok)
		assert.Equal(t, want, rel)
	}
}

func TestRelativePathCaseInsensitive(t *testing.T) {
	root := `file:///C:\Work\Project`
	file := "file:///c:/work/project/Src/Main.java"

	_, ok := uri.RelativePath(root, file, false)
	assert.False(t, ok)

	rel, ok := uri.RelativePath(root, file, true)
	assert.True(t, ok)
	assert.Equal(t, "Src/Main.java", rel)
}
