package builder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/buildhub/internal/protocol"
)

func TestParser_Classifies(t *testing.T) {
	p := NewParser("/src")

	tests := []struct {
		line string
		kind protocol.LogKind
		body string
		path string
		ln   int
		col  int
	}{
		{line: "compiling app", kind: protocol.KindMessage, body: "compiling app"},
		{line: "main.c:3:5: error: expected ';'", kind: protocol.KindLocError, body: "expected ';'", path: "/src/main.c", ln: 3, col: 5},
		{line: "main.c:3:5: warning: unused", kind: protocol.KindLocWarning, body: "unused", path: "/src/main.c", ln: 3, col: 5},
		{line: "lib/x.h:10:1: note: declared here", kind: protocol.KindLocMessage, body: "declared here", path: "/src/lib/x.h", ln: 10, col: 1},
		{line: "./main.go:7:2: undefined: x", kind: protocol.KindLocError, body: "undefined: x", path: "/src/main.go", ln: 7, col: 2},
		{line: "/abs/a.rs:1:1: error[E0425]: cannot find value", kind: protocol.KindLocError, body: "cannot find value", path: "/abs/a.rs", ln: 1, col: 1},
		{line: "main.go:12: panic: boom", kind: protocol.KindLocPanic, body: "boom", path: "/src/main.go", ln: 12, col: 1},
		{line: "error: linking failed", kind: protocol.KindError, body: "linking failed"},
		{line: "warning[unused]: crate is empty", kind: protocol.KindWarning, body: "crate is empty"},
		{line: "step 1:2: not a path", kind: protocol.KindMessage, body: "step 1:2: not a path"},
		{line: "crlf line\r", kind: protocol.KindMessage, body: "crlf line"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			e := p.Parse(tt.line)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.body, e.Body)

			loc, ok := e.Location()
			if tt.path == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.path, loc.Path)
			assert.Equal(t, tt.ln, loc.Line)
			assert.Equal(t, tt.col, loc.Column)
			assert.Nil(t, loc.Range, "sources under /src do not exist")
		})
	}
}

func TestParser_ByteRange(t *testing.T) {
	dir := t.TempDir()
	src := "int main() {\n  int unused;\n  return 0;\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.c"), []byte(src), 0o644))

	p := NewParser(dir)

	tests := []struct {
		name string
		line string
		want *protocol.ByteRange
	}{
		{"identifier", "main.c:2:7: warning: unused variable", &protocol.ByteRange{Start: 19, End: 25}},
		{"punctuation", "main.c:1:12: error: brace", &protocol.ByteRange{Start: 11, End: 12}},
		{"end of line", "main.c:2:14: error: eol", &protocol.ByteRange{Start: 26, End: 26}},
		{"past end of line", "main.c:2:40: error: far", nil},
		{"past last line", "main.c:9:1: error: gone", nil},
		{"missing file", "other.c:1:1: error: none", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := p.Parse(tt.line)
			require.NotNil(t, e.Loc)
			assert.Equal(t, tt.want, e.Loc.Range)
		})
	}

	assert.Equal(t, "unused", src[19:25])
}
