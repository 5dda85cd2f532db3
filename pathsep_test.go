package aviron

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslatePath(t *testing.T) {
	cases := []struct {
		name string
		path string
		sep  FileSeparator
		want string
	}{
		{"unix target", `a\b\c`, SeparatorUnix, "a/b/c"},
		{"windows target", "a/b/c", SeparatorWindows, `a\b\c`},
		{"jvm leaves unix path alone", "a/b/c", SeparatorJVM, "a/b/c"},
		{"local leaves windows path alone", `a\b\c`, SeparatorLocal, `a\b\c`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, translatePath(tc.path, tc.sep))
		})
	}
}

func TestTranslatePathJVMIsIdentity(t *testing.T) {
	// SeparatorJVM/SeparatorLocal never rewrite: translating to that
	// flavor and "back" (a no-op) always yields the original path, per
	// spec.md §8's round-trip property.
	for _, local := range []string{`dir\sub\file.txt`, "dir/sub/file.txt", "noseparator"} {
		assert.Equal(t, local, translatePath(local, SeparatorJVM))
		assert.Equal(t, local, translatePath(local, SeparatorLocal))
	}
}
