package tsengine

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"github.com/gossip-lsp/sightline/document"
	"github.com/gossip-lsp/sightline/protocol"
	"github.com/gossip-lsp/sightline/serial"
	"github.com/gossip-lsp/sightline/treesitter"
)

var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"testdata":     true,
}

// sources lists the files under root the registry has a grammar for.
func (x *Index) sources(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || skipDirs[d.Name()]) {
				return filepath.SkipDir
			}
			return nil
		}
		if x.registry.HasLanguage(path) {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

// Load parses every source file under roots in parallel and installs the
// results on q. The index is ready once the first Load returns. Files open
// in the editor keep their editor contents.
func (x *Index) Load(ctx context.Context, q *serial.Queue, roots ...string) error {
	var paths []string
	for _, root := range roots {
		found, err := x.sources(root)
		if err != nil {
			return fmt.Errorf("tsengine: scan %s: %w", root, err)
		}
		paths = append(paths, found...)
	}

	results := make([]*fileIndex, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			src, err := x.readFile(path)
			if err != nil {
				x.logger.Warn("tsengine: read failed", "path", path, "error", err)
				return nil
			}
			uri := document.URIFromPath(path)
			f, err := x.parse(uri, languageID(uri), src)
			if err != nil {
				x.logger.Warn("tsengine: parse failed", "path", path, "error", err)
				return nil
			}
			results[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return q.Invoke(ctx, func(context.Context) error {
		for _, root := range roots {
			x.roots = appendUnique(x.roots, root)
		}
		installed := 0
		for _, f := range results {
			if f == nil {
				continue
			}
			if cur, ok := x.files[f.uri]; ok && cur.open {
				continue
			}
			x.install(f)
			installed++
		}
		x.ready.Store(true)
		x.logger.Info("tsengine: workspace indexed",
			"roots", len(roots),
			"files", installed,
			"generation", x.Generation(),
		)
		return nil
	})
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// Forget drops every file under root. It must run on the index's queue.
func (x *Index) Forget(root string) {
	prefix := string(document.URIFromPath(root)) + "/"
	for uri, f := range x.files {
		if strings.HasPrefix(string(uri), prefix) && !f.open {
			x.remove(uri)
		}
	}
	kept := x.roots[:0]
	for _, r := range x.roots {
		if r != root {
			kept = append(kept, r)
		}
	}
	x.roots = kept
}

// Attach keeps open documents indexed from the manager's incremental trees.
// Extraction runs in the manager callback; installation is queued on q.
// Closing a document reverts its entry to the disk contents.
func (x *Index) Attach(mgr *treesitter.Manager, store *document.Store, q *serial.Queue) {
	mgr.OnTreeUpdate(func(uri protocol.DocumentURI, _ *tree_sitter.Language, tree *treesitter.Tree) {
		langID := languageID(uri)
		if _, known := languages[langID]; !known {
			if doc := store.Get(uri); doc != nil {
				langID = doc.LanguageID()
			}
		}
		f := extract(uri, langID, tree)
		f.open = true
		if err := q.Submit(func(context.Context) { x.install(f) }); err != nil {
			x.logger.Debug("tsengine: update dropped", "uri", uri, "error", err)
		}
	})
	store.OnClose(func(uri protocol.DocumentURI) {
		err := q.Submit(func(context.Context) { x.reload(uri) })
		if err != nil {
			x.logger.Debug("tsengine: reload dropped", "uri", uri, "error", err)
		}
	})
}

// reload re-reads uri from disk, dropping it when it is gone.
func (x *Index) reload(uri protocol.DocumentURI) {
	path := document.PathFromURI(uri)
	src, err := x.readFile(path)
	if err != nil {
		x.remove(uri)
		return
	}
	f, err := x.parse(uri, languageID(uri), src)
	if err != nil {
		x.remove(uri)
		return
	}
	x.install(f)
}
