package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gossip-lsp/sightline/transport"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, text := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	}
	return dir
}

func TestTransportSpec(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    transport.Spec
		wantErr bool
	}{
		{"default", nil, transport.Spec{Kind: transport.KindStdio}, false},
		{"node ipc", []string{"--node-ipc"}, transport.Spec{Kind: transport.KindNodeIPC}, false},
		{"tcp", []string{"--tcp", "127.0.0.1:7777"}, transport.Spec{Kind: transport.KindTCP, Addr: "127.0.0.1:7777"}, false},
		{"listen", []string{"--listen", "ws:localhost:9000"}, transport.Spec{Kind: transport.KindWebSocket, Addr: "localhost:9000"}, false},
		{"bad listen", []string{"--listen", "carrier-pigeon"}, transport.Spec{}, true},
		{"conflict", []string{"--stdio", "--socket", "/tmp/s.sock"}, transport.Spec{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newServeCmd()
			require.NoError(t, cmd.Flags().Parse(tt.args))
			got, err := transportSpec(cmd)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildCommandSucceeds(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"main.go": "package main\n\n// TODO: say more\nfunc main() {}\n",
	})
	out, err := execute(t, "--log-level", "error", "build", dir, "--color", "off")
	require.NoError(t, err)
	assert.Contains(t, out, "main.go:3:")
	assert.Contains(t, out, "info: TODO: say more")
	assert.Contains(t, out, "build succeeded")
}

func TestBuildCommandReportsErrors(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"bad.go": "package main\n\nfunc broken( {\n",
	})
	out, err := execute(t, "--log-level", "error", "build", dir, "--color", "off")
	assert.ErrorIs(t, err, errBuildFailed)
	assert.Contains(t, out, "bad.go:")
	assert.Contains(t, out, "error:")
	assert.Contains(t, out, "build failed")
}

func TestBuildCommandNoToolchain(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"main.go":         "package main\n",
		".sightline.toml": "[build]\ntoolchain = \"\"\n",
	})
	out, err := execute(t, "--log-level", "error", "build", dir, "--color", "off")
	assert.Error(t, err)
	assert.Contains(t, out, "no toolchain configured")
}

func TestBuildCommandUnknownConfiguration(t *testing.T) {
	dir := writeFiles(t, map[string]string{"main.go": "package main\n"})
	_, err := execute(t, "--log-level", "error", "build", dir, "--config", "nope", "--color", "off")
	assert.ErrorContains(t, err, `"nope"`)
}

func TestLogFormatValidation(t *testing.T) {
	_, err := execute(t, "--log-format", "xml", "build", t.TempDir())
	assert.ErrorContains(t, err, "--log-format")
}
