package lsptest_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gossip-lsp/sightline"
	"github.com/gossip-lsp/sightline/lsptest"
	"github.com/gossip-lsp/sightline/protocol"
	"github.com/gossip-lsp/sightline/treesitter"
)

func TestClientHover(t *testing.T) {
	s := sightline.NewServer("test-server", "0.1.0")
	s.OnHover(func(ctx *sightline.Context, p *protocol.HoverParams) (*protocol.Hover, error) {
		doc := ctx.Documents.Get(p.TextDocument.URI)
		if doc == nil {
			return nil, nil
		}
		return &protocol.Hover{
			Contents: protocol.MarkedString{Language: "text", Value: doc.WordAt(p.Position)},
		}, nil
	})

	c := lsptest.NewClient(t, s)
	c.Open("file:///test.txt", "plaintext", "hello world")

	hover, err := c.Hover("file:///test.txt", lsptest.Pos(0, 2))
	if err != nil {
		t.Fatalf("hover error: %v", err)
	}
	lsptest.AssertHoverContains(t, hover, "hello")
	lsptest.AssertHoverLanguage(t, hover, "text")

	hover, err = c.Hover("file:///missing.txt", lsptest.Pos(0, 0))
	if err != nil {
		t.Fatalf("hover error: %v", err)
	}
	if hover != nil {
		t.Errorf("hover on unknown document = %+v, want nil", hover)
	}
}

func TestClientDefinition(t *testing.T) {
	uri := lsptest.FileURI("/src/main.go")
	s := sightline.NewServer("test-server", "0.1.0")
	s.OnDefinition(func(ctx *sightline.Context, p *protocol.DefinitionParams) ([]protocol.Location, error) {
		return []protocol.Location{{URI: p.TextDocument.URI, Range: lsptest.Rng(3, 5, 3, 9)}}, nil
	})

	c := lsptest.NewClient(t, s)
	locs, err := c.Definition(uri, lsptest.Pos(10, 2))
	if err != nil {
		t.Fatalf("definition error: %v", err)
	}
	lsptest.AssertLocationCount(t, locs, 1)
	lsptest.AssertLocationAt(t, locs, uri, lsptest.Pos(3, 5))
}

func TestClientExecuteCommand(t *testing.T) {
	s := sightline.NewServer("test-server", "0.1.0")
	s.HandleCommand("test.echo", func(ctx *sightline.Context, args []json.RawMessage) (interface{}, error) {
		var word string
		if err := json.Unmarshal(args[0], &word); err != nil {
			return nil, err
		}
		ctx.Client.LogMessage(ctx, protocol.Info, "echo "+word)
		return word + word, nil
	})

	c := lsptest.NewClient(t, s)
	if cmds := c.Capabilities.ExecuteCommandProvider; cmds == nil || len(cmds.Commands) != 1 || cmds.Commands[0] != "test.echo" {
		t.Fatalf("advertised commands = %+v", cmds)
	}

	var got string
	if err := c.ExecuteCommand("test.echo", []interface{}{"ab"}, &got); err != nil {
		t.Fatalf("executeCommand error: %v", err)
	}
	if got != "abab" {
		t.Errorf("result = %q, want %q", got, "abab")
	}

	raw := c.WaitForNotification(protocol.MethodLogMessage, time.Second, nil)
	var msg protocol.LogMessageParams
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Message != "echo ab" {
		t.Errorf("log message = %q", msg.Message)
	}

	if err := c.ExecuteCommand("test.unknown", nil, nil); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestClientShutdownExit(t *testing.T) {
	s := sightline.NewServer("test-server", "0.1.0")
	c := lsptest.NewClient(t, s)
	c.Shutdown()
	if err := c.Exit(2 * time.Second); err != nil {
		t.Errorf("serve returned %v after orderly exit", err)
	}
}

func TestClientExitWithoutShutdown(t *testing.T) {
	s := sightline.NewServer("test-server", "0.1.0")
	c := lsptest.NewClient(t, s)
	if err := c.Exit(2 * time.Second); !errors.Is(err, sightline.ErrExitWithoutShutdown) {
		t.Errorf("serve returned %v, want ErrExitWithoutShutdown", err)
	}
}

func TestWorkspaceFixture(t *testing.T) {
	w := lsptest.NewWorkspace(t, map[string]string{
		"pkg/a.go": "package pkg\n\nfunc Alpha() {}\n",
	})
	if got := w.PosOf(t, "pkg/a.go", "Alpha", 1); got != lsptest.Pos(2, 6) {
		t.Errorf("PosOf = %+v", got)
	}
	tree := lsptest.ParseString(t, treesitter.Go, "package pkg\n\nfunc Alpha() {}\n")
	lsptest.AssertNoErrors(t, tree)
	lsptest.AssertNodeKind(t, tree.RootNode(), "source_file")
}
