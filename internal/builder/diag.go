package builder

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/buildhub/internal/protocol"
)

// diagPattern matches compiler diagnostics of the form
//
//	path:line:col: severity: message
//	path:line: message
//
// Severity is optional (the Go toolchain omits it).
var diagPattern = regexp.MustCompile(
	`^([^\s:][^:]*):(\d+):(?:(\d+):)?\s*(?:(error|warning|note|info|panic)(?:\[[^\]]*\])?:\s*)?(.*)$`,
)

// plainPattern matches unlocated "error: ..." and "warning: ..." lines.
var plainPattern = regexp.MustCompile(`^(error|warning)(?:\[[^\]]*\])?:\s*(.*)$`)

// Parser turns output lines into log entries, resolving byte ranges by
// reading the referenced sources.
//
// Not safe for concurrent use: each job owns one.
type Parser struct {
	dir     string
	sources map[string][]byte
}

// NewParser creates a parser resolving relative paths against dir.
func NewParser(dir string) *Parser {
	return &Parser{dir: dir, sources: make(map[string][]byte)}
}

// Parse classifies one line of output.
func (p *Parser) Parse(line string) protocol.LogEntry {
	line = strings.TrimRight(line, "\r")

	if m := diagPattern.FindStringSubmatch(line); m != nil && !strings.Contains(m[1], " ") {
		lineNo, _ := strconv.Atoi(m[2])
		col := 1
		if m[3] != "" {
			col, _ = strconv.Atoi(m[3])
		}

		path := m[1]
		if !filepath.IsAbs(path) && p.dir != "" {
			path = filepath.Join(p.dir, path)
		}
		loc := &protocol.Location{Path: path, Line: lineNo, Column: col}
		loc.Range = p.byteRange(path, lineNo, col)

		return protocol.LogEntry{Kind: locKind(m[4]), Body: m[5], Loc: loc}
	}

	if m := plainPattern.FindStringSubmatch(line); m != nil {
		kind := protocol.KindError
		if m[1] == "warning" {
			kind = protocol.KindWarning
		}
		return protocol.LogEntry{Kind: kind, Body: m[2]}
	}

	return protocol.Message(line)
}

func locKind(severity string) protocol.LogKind {
	switch severity {
	case "warning":
		return protocol.KindLocWarning
	case "note", "info":
		return protocol.KindLocMessage
	case "panic":
		return protocol.KindLocPanic
	default:
		return protocol.KindLocError
	}
}

// byteRange maps a 1-based line and byte column to the span of the token
// starting there. Returns nil when the source cannot be read or the
// position is outside it.
func (p *Parser) byteRange(path string, line, col int) *protocol.ByteRange {
	src, ok := p.sources[path]
	if !ok {
		data, err := os.ReadFile(path)
		if err != nil {
			data = nil
		}
		p.sources[path] = data
		src = data
	}
	if src == nil || line < 1 || col < 1 {
		return nil
	}

	start := 0
	for i := 1; i < line; i++ {
		nl := bytes.IndexByte(src[start:], '\n')
		if nl < 0 {
			return nil
		}
		start += nl + 1
	}
	lineEnd := len(src)
	if nl := bytes.IndexByte(src[start:], '\n'); nl >= 0 {
		lineEnd = start + nl
	}

	pos := start + col - 1
	if pos > lineEnd {
		return nil
	}
	end := pos
	for end < lineEnd && isWordByte(src[end]) {
		end++
	}
	if end == pos && pos < lineEnd {
		end++
	}
	return &protocol.ByteRange{Start: pos, End: end}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= 0x80
}
