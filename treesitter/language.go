package treesitter

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// ErrNoLanguage is returned when no grammar is registered for a document.
var ErrNoLanguage = errors.New("treesitter: no language registered")

// Registry resolves documents to grammars. A lookup tries the exact file
// name, then the client's language id, then glob patterns, and finally the
// file extension. Within each table the earliest registration wins, except
// that Register replaces an extension outright.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]*tree_sitter.Language
	byID     map[string]*tree_sitter.Language
	byExt    map[string]*tree_sitter.Language
	patterns []globRule
}

type globRule struct {
	glob string
	lang *tree_sitter.Language
}

// NewRegistry builds a registry from cfg. Matchers are indexed in order and
// cfg.Languages fills extensions no matcher claimed.
func NewRegistry(cfg Config) *Registry {
	r := &Registry{
		byName: make(map[string]*tree_sitter.Language),
		byID:   make(map[string]*tree_sitter.Language),
		byExt:  make(map[string]*tree_sitter.Language),
	}
	for _, m := range cfg.Matchers {
		r.add(m)
	}
	for ext, lang := range cfg.Languages {
		claim(r.byExt, normalizeExt(ext), lang)
	}
	return r
}

// Register binds ext to lang, replacing any earlier binding.
func (r *Registry) Register(ext string, lang *tree_sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byExt[normalizeExt(ext)] = lang
}

// RegisterMatcher indexes m after every matcher already registered.
func (r *Registry) RegisterMatcher(m LanguageMatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(m)
}

func (r *Registry) add(m LanguageMatcher) {
	for _, name := range m.Filenames {
		claim(r.byName, name, m.Language)
	}
	if m.LanguageID != "" {
		claim(r.byID, m.LanguageID, m.Language)
	}
	if m.Pattern != "" {
		r.patterns = append(r.patterns, globRule{glob: m.Pattern, lang: m.Language})
	}
	for _, ext := range m.Extensions {
		claim(r.byExt, normalizeExt(ext), m.Language)
	}
}

func claim(table map[string]*tree_sitter.Language, key string, lang *tree_sitter.Language) {
	if _, taken := table[key]; !taken {
		table[key] = lang
	}
}

func normalizeExt(ext string) string {
	if strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}

// LanguageFor is LanguageForURI without a language id.
func (r *Registry) LanguageFor(uri string) (*tree_sitter.Language, error) {
	return r.LanguageForURI(uri, "")
}

// LanguageForURI picks the grammar for uri. languageID is the id the client
// opened the document with and may be empty.
func (r *Registry) LanguageForURI(uri, languageID string) (*tree_sitter.Language, error) {
	base := path.Base(uri)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if lang, ok := r.byName[base]; ok {
		return lang, nil
	}
	if lang, ok := r.byID[languageID]; ok && languageID != "" {
		return lang, nil
	}
	for _, p := range r.patterns {
		if ok, _ := path.Match(p.glob, uri); ok {
			return p.lang, nil
		}
		if ok, _ := path.Match(p.glob, base); ok {
			return p.lang, nil
		}
	}
	if ext := path.Ext(base); ext != "" {
		if lang, ok := r.byExt[ext]; ok {
			return lang, nil
		}
	}
	return nil, fmt.Errorf("%w for %s", ErrNoLanguage, uri)
}

// HasLanguage reports whether uri resolves to a grammar on its own.
func (r *Registry) HasLanguage(uri string) bool {
	_, err := r.LanguageFor(uri)
	return err == nil
}
