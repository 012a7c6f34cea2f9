package document

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gossip-lsp/sightline/protocol"
)

// URIFromPath converts an absolute filesystem path to a file:// URI.
func URIFromPath(path string) protocol.DocumentURI {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return protocol.DocumentURI(u.String())
}

// PathFromURI converts a file:// URI to a filesystem path. It returns "" for
// URIs with any other scheme.
func PathFromURI(uri protocol.DocumentURI) string {
	s := string(uri)
	if !strings.HasPrefix(s, "file://") {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil {
		return filepath.FromSlash(strings.TrimPrefix(s, "file://"))
	}
	return filepath.FromSlash(u.Path)
}

var extLanguages = map[string]string{
	".go":   "go",
	".py":   "python",
	".pyi":  "python",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
}

// LanguageIDForPath guesses the LSP language identifier from a file
// extension. Unknown extensions yield "plaintext".
func LanguageIDForPath(path string) string {
	if id, ok := extLanguages[strings.ToLower(filepath.Ext(path))]; ok {
		return id
	}
	return "plaintext"
}
