package lsptest

import (
	"strings"
	"testing"

	"github.com/gossip-lsp/sightline/protocol"
)

// AssertHoverContains asserts that the hover result contains the expected substring.
func AssertHoverContains(t testing.TB, hover *protocol.Hover, substr string) {
	t.Helper()
	if hover == nil {
		t.Fatal("hover result is nil")
	}
	if !strings.Contains(hover.Contents.Value, substr) {
		t.Errorf("hover contents %q does not contain %q", hover.Contents.Value, substr)
	}
}

// AssertHoverLanguage asserts the language tag of a hover result.
func AssertHoverLanguage(t testing.TB, hover *protocol.Hover, language string) {
	t.Helper()
	if hover == nil {
		t.Fatal("hover result is nil")
	}
	if hover.Contents.Language != language {
		t.Errorf("hover language = %q, want %q", hover.Contents.Language, language)
	}
}

// AssertBuildMessageCount asserts the number of diagnostics reported for a
// URI across the messages of one build session.
func AssertBuildMessageCount(t testing.TB, msgs []protocol.BuildMessages, uri string, count int) {
	t.Helper()
	got := 0
	for _, m := range msgs {
		if string(m.URI) == uri {
			got += len(m.Diagnostics)
		}
	}
	if got != count {
		t.Errorf("expected %d build messages for %s, got %d", count, uri, got)
	}
}

// AssertLocationCount asserts the number of locations returned.
func AssertLocationCount(t testing.TB, locations []protocol.Location, count int) {
	t.Helper()
	if len(locations) != count {
		t.Errorf("expected %d locations, got %d", count, len(locations))
	}
}

// AssertLocationAt asserts that one of locations starts at pos in uri.
func AssertLocationAt(t testing.TB, locations []protocol.Location, uri string, pos protocol.Position) {
	t.Helper()
	for _, l := range locations {
		if string(l.URI) == uri && l.Range.Start == pos {
			return
		}
	}
	t.Errorf("no location at %s:%d:%d in %v", uri, pos.Line, pos.Character, locations)
}
