package lsptest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gossip-lsp/sightline/document"
	"github.com/gossip-lsp/sightline/protocol"
)

// FileURI creates a file:// URI from a path.
func FileURI(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("file://%s", path)
}

// Pos creates a protocol.Position from line and character (0-indexed).
func Pos(line, char uint32) protocol.Position {
	return protocol.Position{Line: line, Character: char}
}

// Rng creates a protocol.Range from start and end positions.
func Rng(startLine, startChar, endLine, endChar uint32) protocol.Range {
	return protocol.Range{
		Start: Pos(startLine, startChar),
		End:   Pos(endLine, endChar),
	}
}

// Workspace is a temporary directory populated with files.
type Workspace struct {
	Dir   string
	files map[string]string
}

// NewWorkspace writes files (slash-separated relative paths) under a fresh
// temporary directory.
func NewWorkspace(t testing.TB, files map[string]string) *Workspace {
	t.Helper()
	w := &Workspace{Dir: t.TempDir(), files: files}
	for name, text := range files {
		path := filepath.Join(w.Dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return w
}

// URI returns the URI of a workspace file.
func (w *Workspace) URI(name string) string {
	return string(document.URIFromPath(filepath.Join(w.Dir, filepath.FromSlash(name))))
}

// PosOf returns the position of the first occurrence of needle in the
// named file, shifted right by delta characters.
func (w *Workspace) PosOf(t testing.TB, name, needle string, delta int) protocol.Position {
	t.Helper()
	text, ok := w.files[name]
	if !ok {
		t.Fatalf("no workspace file %s", name)
	}
	off := strings.Index(text, needle)
	if off < 0 {
		t.Fatalf("%q not found in %s", needle, name)
	}
	return document.PositionAt(text, off+delta)
}
