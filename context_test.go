package sightline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gossip-lsp/sightline/protocol"
)

func TestFolderFor(t *testing.T) {
	folders := []protocol.WorkspaceFolder{
		{URI: "file:///src/app", Name: "app"},
		{URI: "file:///src/app/vendor/", Name: "vendor"},
		{URI: "file:///src/lib", Name: "lib"},
	}
	tests := []struct {
		uri  protocol.DocumentURI
		want string
	}{
		{"file:///src/app/main.go", "app"},
		{"file:///src/app", "app"},
		{"file:///src/app/vendor/x/y.go", "vendor"},
		{"file:///src/lib/z.py", "lib"},
		{"file:///src/application/main.go", ""},
		{"", ""},
	}
	for _, tt := range tests {
		f, ok := folderFor(folders, tt.uri)
		if tt.want == "" {
			assert.False(t, ok, "folderFor(%q) = %q", tt.uri, f.Name)
			continue
		}
		if assert.True(t, ok, "folderFor(%q)", tt.uri) {
			assert.Equal(t, tt.want, f.Name, "folderFor(%q)", tt.uri)
		}
	}
}

func TestWorkspaceForFallsBackToFirstFolder(t *testing.T) {
	s := NewServer("test", "0")
	ctx := &Context{server: s}
	assert.Empty(t, ctx.WorkspaceFor("file:///x.go"))

	s.workspaceFolders = []protocol.WorkspaceFolder{{URI: "file:///a"}, {URI: "file:///b"}}
	assert.Equal(t, protocol.DocumentURI("file:///b"), ctx.WorkspaceFor("file:///b/c.go"))
	assert.Equal(t, protocol.DocumentURI("file:///a"), ctx.WorkspaceFor("file:///elsewhere/c.go"))
	assert.Equal(t, protocol.DocumentURI("file:///a"), ctx.WorkspaceFor(""))
}
